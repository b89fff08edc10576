package rbac

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Permission names for every service area of the lab. The registry is
// compiled in: permissions are not end-user creatable, and names
// removed from this list leave orphan rows behind rather than erroring.
const (
	PermApplicants    = "applicants.access"
	PermSampling      = "sampling.access"
	PermDiagnosis     = "diagnosis.access"
	PermInventory     = "inventory.manage"
	PermEquipment     = "equipment.manage"
	PermMail          = "mail.access"
	PermFileSharing   = "files.share"
	PermVisitors      = "visitors.manage"
	PermArchives      = "archives.manage"
	PermIssueTracker  = "issues.track"
	PermKnowledgeBase = "kb.manage"
	PermReports       = "reports.view"
	PermAuditLog      = "audit.view"
)

// Registry returns the closed set of valid permission names.
func Registry() []string {
	return []string{
		PermApplicants,
		PermSampling,
		PermDiagnosis,
		PermInventory,
		PermEquipment,
		PermMail,
		PermFileSharing,
		PermVisitors,
		PermArchives,
		PermIssueTracker,
		PermKnowledgeBase,
		PermReports,
		PermAuditLog,
	}
}

// InRegistry reports whether name is a known permission.
func InRegistry(name string) bool {
	for _, p := range Registry() {
		if p == name {
			return true
		}
	}
	return false
}

var titleCaser = cases.Title(language.English)

// Label turns a permission name into its display form, e.g.
// "inventory.manage" becomes "Inventory Manage".
func Label(name string) string {
	return titleCaser.String(strings.NewReplacer(".", " ", "_", " ").Replace(name))
}
