// Command seed fills a laboratory database with demo data: the
// bootstrap roles and admin, a handful of staff, departments,
// applicants with samples, inventory, and equipment. Safe to run more
// than once; rows that already exist are left alone.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/samplyze/samplyze/internal/applicants"
	"github.com/samplyze/samplyze/internal/auth"
	"github.com/samplyze/samplyze/internal/departments"
	"github.com/samplyze/samplyze/internal/equipment"
	"github.com/samplyze/samplyze/internal/inventory"
	"github.com/samplyze/samplyze/internal/platform/db"
	"github.com/samplyze/samplyze/internal/rbac"
	"github.com/samplyze/samplyze/internal/samples"
	"github.com/samplyze/samplyze/internal/shared"
	"github.com/samplyze/samplyze/internal/users"
)

func main() {
	ctx := context.Background()
	path := getenv("SQLITE_PATH", "instance/laboratory.db")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Fatalf("create instance dir: %v", err)
	}
	handle, err := db.Open(ctx, path)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer handle.Close()
	if err := db.EnsureSchema(ctx, handle); err != nil {
		log.Fatalf("ensure schema: %v", err)
	}

	clock, err := shared.NewClock(getenv("TIMEZONE", "Asia/Kolkata"))
	if err != nil {
		log.Fatalf("load timezone: %v", err)
	}

	rbacSvc := rbac.NewService(rbac.NewRepository(handle))
	authSvc := auth.NewService(auth.NewRepository(handle))
	deptSvc := departments.NewService(departments.NewRepository(handle))
	staffSvc := users.NewService(users.NewRepository(handle), authSvc)
	applicantSvc := applicants.NewService(applicants.NewRepository(handle), clock)
	sampleSvc := samples.NewService(samples.NewRepository(handle), clock)
	inventorySvc := inventory.NewService(inventory.NewRepository(handle), clock)
	equipmentSvc := equipment.NewService(equipment.NewRepository(handle), clock)

	fmt.Println("→ Seeding roles and admin...")
	if err := rbacSvc.SeedRegistry(ctx); err != nil {
		log.Fatalf("seed registry: %v", err)
	}
	if err := rbacSvc.SeedRoles(ctx, rbac.DefaultSeeds()); err != nil {
		log.Fatalf("seed roles: %v", err)
	}
	if err := authSvc.EnsureBootstrapAdmin(ctx, rbacSvc, getenv("BOOTSTRAP_ADMIN_PASSWORD", "password")); err != nil {
		log.Fatalf("bootstrap admin: %v", err)
	}

	fmt.Println("→ Seeding departments and staff...")
	deptIDs := map[string]int64{}
	for _, name := range []string{"Microbiology", "Biochemistry", "Pathology"} {
		id, err := deptSvc.Create(ctx, name)
		if errors.Is(err, shared.ErrDuplicateName) {
			continue
		}
		if err != nil {
			log.Fatalf("seed department %s: %v", name, err)
		}
		deptIDs[name] = id
	}
	staffRoleID := roleID(ctx, rbacSvc, "Staff")
	for _, s := range []struct{ username, name, dept string }{
		{"asha.nair", "Asha Nair", "Microbiology"},
		{"ravi.iyer", "Ravi Iyer", "Biochemistry"},
		{"meera.pillai", "Meera Pillai", "Pathology"},
	} {
		input := users.StaffInput{Username: s.username, Name: s.name, RoleID: staffRoleID}
		if id, ok := deptIDs[s.dept]; ok {
			input.DepartmentID = &id
		}
		if _, err := staffSvc.Create(ctx, input, "password123"); err != nil && !errors.Is(err, shared.ErrDuplicateName) {
			log.Fatalf("seed staff %s: %v", s.username, err)
		}
	}

	fmt.Println("→ Seeding applicants and samples...")
	for _, a := range []applicants.Input{
		{Name: "Kiran Rao", Gender: "Male", Phone: "9876500011", Email: "kiran@example.com", City: "Kochi", State: "Kerala", Country: "India"},
		{Name: "Lakshmi Menon", Gender: "Female", Phone: "9876500012", Email: "lakshmi@example.com", City: "Chennai", State: "Tamil Nadu", Country: "India"},
	} {
		applicant, err := applicantSvc.Register(ctx, a)
		if err != nil {
			log.Fatalf("seed applicant %s: %v", a.Name, err)
		}
		if _, err := sampleSvc.Submit(ctx, samples.Input{
			ApplicantID:     applicant.ID,
			Name:            "Blood panel",
			Type:            "Blood",
			StorageLocation: "Rack A-3",
			Status:          samples.DefaultStatus,
		}); err != nil {
			log.Fatalf("seed sample for %s: %v", a.Name, err)
		}
	}

	fmt.Println("→ Seeding inventory...")
	for _, item := range []inventory.ItemInput{
		{SKU: "GLV-N-M", Name: "Nitrile gloves (M)", Category: "Consumables", Quantity: 400, Unit: "pcs", Location: "Store 1"},
		{SKU: "TUBE-EDTA", Name: "EDTA tubes", Category: "Consumables", Quantity: 250, Unit: "pcs", Location: "Store 1"},
		{SKU: "RGT-GLU", Name: "Glucose reagent", Category: "Reagents", Quantity: 12, Unit: "bottles", Location: "Cold store"},
	} {
		if _, err := inventorySvc.Create(ctx, item); err != nil && !errors.Is(err, shared.ErrDuplicateName) {
			log.Fatalf("seed inventory %s: %v", item.SKU, err)
		}
	}

	fmt.Println("→ Seeding equipment...")
	for _, eq := range []equipment.Input{
		{IDNumber: "EQ-001", Name: "Centrifuge", Location: "Bench 2", MakeModel: "Remi R-8C"},
		{IDNumber: "EQ-002", Name: "Incubator", Location: "Micro lab", MakeModel: "Thermo Heratherm", MultiUser: true},
	} {
		if _, err := equipmentSvc.Register(ctx, eq); err != nil && !errors.Is(err, shared.ErrDuplicateName) {
			log.Fatalf("seed equipment %s: %v", eq.IDNumber, err)
		}
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func roleID(ctx context.Context, svc *rbac.Service, name string) *int64 {
	roles, err := svc.ListRoles(ctx)
	if err != nil {
		log.Fatalf("list roles: %v", err)
	}
	for _, role := range roles {
		if role.Name == name {
			id := role.ID
			return &id
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
