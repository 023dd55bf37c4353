package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-report-api/internal/middleware"
	"github.com/noah-isme/sma-report-api/internal/service"
)

// Handlers groups every HTTP handler mounted under the API prefix.
type Handlers struct {
	Auth         *AuthHandler
	AcademicYear *AcademicYearHandler
	Term         *TermHandler
	Class        *ClassHandler
	Student      *StudentHandler
	User         *UserHandler
	Grading      *GradingHandler
	Mark         *MarkHandler
	Division     *DivisionHandler
	ReportCard   *ReportCardHandler
	Attendance   *AttendanceHandler
}

// RegisterRoutes mounts the API on group. Routes other than login require a
// bearer token and are gated by the same permission table the services use.
func RegisterRoutes(group *gin.RouterGroup, tokens middleware.TokenValidator, h Handlers) {
	group.POST("/auth/login", h.Auth.Login)

	secured := group.Group("")
	secured.Use(middleware.JWT(tokens))
	perm := middleware.Permission

	secured.GET("/auth/me", h.Auth.Me)

	secured.GET("/academic-years", perm(service.OpAcademicYearRead), h.AcademicYear.List)
	secured.GET("/academic-years/active", perm(service.OpAcademicYearRead), h.AcademicYear.Active)
	secured.GET("/academic-years/:id", perm(service.OpAcademicYearRead), h.AcademicYear.Get)
	secured.POST("/academic-years", perm(service.OpAcademicYearWrite), h.AcademicYear.Create)
	secured.PUT("/academic-years/:id", perm(service.OpAcademicYearWrite), h.AcademicYear.Update)
	secured.POST("/academic-years/:id/activate", perm(service.OpAcademicYearWrite), h.AcademicYear.Activate)

	secured.GET("/terms", perm(service.OpTermRead), h.Term.List)
	secured.GET("/terms/:id", perm(service.OpTermRead), h.Term.Get)
	secured.POST("/terms", perm(service.OpTermWrite), h.Term.Create)

	secured.GET("/classes", perm(service.OpClassRead), h.Class.List)
	secured.POST("/classes", perm(service.OpClassWrite), h.Class.Create)
	secured.PUT("/classes/:id/class-teacher", perm(service.OpClassAssignTeacher), h.Class.AssignClassTeacher)
	secured.GET("/classes/:id/subjects", perm(service.OpSubjectRead), h.Class.ListSubjects)
	secured.POST("/classes/:id/subjects", perm(service.OpSubjectWrite), h.Class.CreateSubject)

	secured.GET("/students", perm(service.OpStudentRead), h.Student.List)
	secured.GET("/students/:id", perm(service.OpStudentRead), h.Student.Get)
	secured.POST("/students", perm(service.OpStudentWrite), h.Student.Create)
	secured.PUT("/parents/:parentId/children", perm(service.OpStudentAssignParent), h.Student.AssignParent)

	secured.GET("/users", perm(service.OpUserRead), h.User.List)
	secured.POST("/users", perm(service.OpUserWrite), h.User.Create)

	secured.GET("/grading/thresholds", perm(service.OpGradingRead), h.Grading.List)
	secured.PUT("/grading/thresholds", perm(service.OpGradingWrite), h.Grading.Replace)

	secured.GET("/marks", perm(service.OpMarkRead), h.Mark.List)
	secured.PUT("/marks", perm(service.OpMarkWrite), h.Mark.Upsert)
	secured.POST("/marks/bulk", perm(service.OpMarkWrite), h.Mark.Bulk)

	secured.GET("/attendance", perm(service.OpAttendanceRead), h.Attendance.List)
	secured.GET("/attendance/summary", perm(service.OpAttendanceRead), h.Attendance.Summary)
	secured.PUT("/attendance", perm(service.OpAttendanceWrite), h.Attendance.Mark)
	secured.POST("/attendance/bulk", perm(service.OpAttendanceWrite), h.Attendance.Bulk)

	secured.GET("/divisions", perm(service.OpDivisionRead), h.Division.Calculate)
	secured.GET("/divisions/statistics", perm(service.OpDivisionRead), h.Division.Statistics)
	secured.GET("/divisions/export", perm(service.OpDivisionRead), h.Division.Export)

	secured.GET("/report-cards", perm(service.OpReportCardRead), h.ReportCard.List)
	secured.PUT("/report-cards", perm(service.OpReportCardUpsert), h.ReportCard.Upsert)
	secured.POST("/report-cards/bulk", perm(service.OpReportCardUpsert), h.ReportCard.BulkUpsert)
	secured.GET("/report-cards/distribution", perm(service.OpReportCardDistribution), h.ReportCard.Distribution)
	secured.GET("/report-cards/:id", perm(service.OpReportCardRead), h.ReportCard.Get)
	secured.PUT("/report-cards/:id/approval", perm(service.OpReportCardApprove), h.ReportCard.Approve)
	secured.POST("/report-cards/:id/parent-access", perm(service.OpReportCardParentAccess), h.ReportCard.EnableParentAccess)
	secured.GET("/report-cards/:id/document", perm(service.OpReportCardDocument), h.ReportCard.Document)
	secured.GET("/parent/report-cards", perm(service.OpReportCardParentRead), h.ReportCard.ParentList)
}
