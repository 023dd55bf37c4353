package service

import (
	"github.com/noah-isme/sma-report-api/internal/models"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

// Operation names a guarded service entry point.
type Operation string

const (
	OpAcademicYearRead       Operation = "academic_year.read"
	OpAcademicYearWrite      Operation = "academic_year.write"
	OpTermRead               Operation = "term.read"
	OpTermWrite              Operation = "term.write"
	OpClassRead              Operation = "class.read"
	OpClassWrite             Operation = "class.write"
	OpClassAssignTeacher     Operation = "class.assign_teacher"
	OpSubjectRead            Operation = "subject.read"
	OpSubjectWrite           Operation = "subject.write"
	OpStudentRead            Operation = "student.read"
	OpStudentWrite           Operation = "student.write"
	OpStudentAssignParent    Operation = "student.assign_parent"
	OpUserRead               Operation = "user.read"
	OpUserWrite              Operation = "user.write"
	OpMarkRead               Operation = "mark.read"
	OpMarkWrite              Operation = "mark.write"
	OpAttendanceRead         Operation = "attendance.read"
	OpAttendanceWrite        Operation = "attendance.write"
	OpGradingRead            Operation = "grading.read"
	OpGradingWrite           Operation = "grading.write"
	OpDivisionRead           Operation = "division.read"
	OpReportCardRead         Operation = "report_card.read"
	OpReportCardUpsert       Operation = "report_card.upsert"
	OpReportCardApprove      Operation = "report_card.approve"
	OpReportCardParentAccess Operation = "report_card.parent_access"
	OpReportCardParentRead   Operation = "report_card.parent_read"
	OpReportCardDistribution Operation = "report_card.distribution"
	OpReportCardDocument     Operation = "report_card.document"
)

var (
	staffRoles      = []models.UserRole{models.RoleAdmin, models.RoleHeadteacher, models.RoleClassTeacher, models.RoleSecretary}
	leadershipRoles = []models.UserRole{models.RoleAdmin, models.RoleHeadteacher}
	teachingRoles   = []models.UserRole{models.RoleAdmin, models.RoleHeadteacher, models.RoleClassTeacher}
	officeRoles     = []models.UserRole{models.RoleAdmin, models.RoleHeadteacher, models.RoleSecretary}
)

// permissions maps every operation to the roles allowed to invoke it.
var permissions = map[Operation][]models.UserRole{
	OpAcademicYearRead:       staffRoles,
	OpAcademicYearWrite:      leadershipRoles,
	OpTermRead:               staffRoles,
	OpTermWrite:              leadershipRoles,
	OpClassRead:              staffRoles,
	OpClassWrite:             leadershipRoles,
	OpClassAssignTeacher:     leadershipRoles,
	OpSubjectRead:            staffRoles,
	OpSubjectWrite:           leadershipRoles,
	OpStudentRead:            staffRoles,
	OpStudentWrite:           officeRoles,
	OpStudentAssignParent:    {models.RoleAdmin, models.RoleSecretary},
	OpUserRead:               officeRoles,
	OpUserWrite:              {models.RoleAdmin},
	OpMarkRead:               staffRoles,
	OpMarkWrite:              teachingRoles,
	OpAttendanceRead:         staffRoles,
	OpAttendanceWrite:        teachingRoles,
	OpGradingRead:            staffRoles,
	OpGradingWrite:           leadershipRoles,
	OpDivisionRead:           staffRoles,
	OpReportCardRead:         staffRoles,
	OpReportCardUpsert:       teachingRoles,
	OpReportCardApprove:      {models.RoleHeadteacher, models.RoleAdmin},
	OpReportCardParentAccess: {models.RoleAdmin},
	OpReportCardParentRead:   {models.RoleParent},
	OpReportCardDistribution: staffRoles,
	OpReportCardDocument:     append(append([]models.UserRole{}, staffRoles...), models.RoleParent),
}

// AllowedRoles returns the roles permitted to run op.
func AllowedRoles(op Operation) []models.UserRole {
	return append([]models.UserRole(nil), permissions[op]...)
}

// Authorize checks principal against the permission table. An anonymous
// principal yields ErrUnauthorized, a role outside the allowed set ErrForbidden.
func Authorize(principal models.Principal, op Operation) error {
	if principal.UserID == "" || !principal.Role.Valid() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	for _, role := range permissions[op] {
		if role == principal.Role {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "role "+string(principal.Role)+" may not perform "+string(op))
}
