package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/hostel-api/internal/handler"
	"github.com/noah-isme/hostel-api/internal/middleware"
	"github.com/noah-isme/hostel-api/internal/models"
	"github.com/noah-isme/hostel-api/internal/service"
	appErrors "github.com/noah-isme/hostel-api/pkg/errors"
	"github.com/noah-isme/hostel-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/hostel-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/hostel-api/pkg/middleware/requestid"
	"github.com/noah-isme/hostel-api/pkg/response"
)

// Handlers groups every HTTP handler mounted by the router.
type Handlers struct {
	Auth           *handler.AuthHandler
	Users          *handler.UserHandler
	Attendance     *handler.AttendanceHandler
	Mess           *handler.MessHandler
	Complaints     *handler.ComplaintHandler
	WardenRequests *handler.WardenRequestHandler
	Announcements  *handler.AnnouncementHandler
	Rooms          *handler.RoomHandler
	Dashboard      *handler.DashboardHandler
	Metrics        *handler.MetricsHandler
}

// Options carries the cross-cutting collaborators shared by the route groups.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool

	Authenticator middleware.Authenticator
	AuthLimiter   middleware.Limiter
	Audit         middleware.AuditWriter
	Metrics       *service.MetricsService
	Logger        *zap.Logger
}

var (
	student = models.RoleStudent
	warden  = models.RoleWarden
	admin   = models.RoleAdmin
)

// New builds the gin engine with global middleware and all /api/v1 routes.
func New(h Handlers, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api/v1"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.Metrics))
	r.Use(middleware.WithResponseMeta())

	r.NoRoute(func(c *gin.Context) {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
	})

	r.GET("/health", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.APIPrefix)
	auth := middleware.JWT(opts.Authenticator)
	privileged := middleware.RequireRoles(warden, admin)
	adminOnly := middleware.RequireRoles(admin)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(opts.Audit, opts.Logger, action, resource)
	}

	registerAuth(api, h.Auth, auth, opts)
	registerUsers(api.Group("/users", auth), h.Users, privileged, adminOnly)
	registerAttendance(api.Group("/attendance", auth), h.Attendance, privileged)
	registerMess(api.Group("/mess", auth), h.Mess, privileged, audit)
	registerComplaints(api.Group("/complaints", auth), h.Complaints, privileged)
	registerWardenRequests(api.Group("/warden-requests", auth), h.WardenRequests, adminOnly, audit)
	registerAnnouncements(api.Group("/announcements", auth), h.Announcements, privileged)
	registerRooms(api.Group("/rooms", auth), h.Rooms, privileged, audit)

	dashboard := api.Group("/dashboard", auth, privileged)
	dashboard.GET("/stats", h.Dashboard.Stats)

	api.GET("/metrics/snapshot", auth, adminOnly, h.Metrics.Snapshot)

	return r
}

func registerAuth(api *gin.RouterGroup, h *handler.AuthHandler, auth gin.HandlerFunc, opts Options) {
	group := api.Group("/auth")
	public := group.Group("")
	if opts.AuthLimiter != nil {
		public.Use(middleware.RateLimit(opts.AuthLimiter, opts.Logger))
	}
	public.POST("/register", h.Register)
	public.POST("/verify-email", h.VerifyEmail)
	public.POST("/resend-otp", h.ResendOTP)
	public.POST("/login", h.Login)
	public.POST("/refresh", h.Refresh)
	public.GET("/google/url", h.GoogleURL)
	public.GET("/google/callback", h.GoogleCallback)

	group.POST("/logout", auth, h.Logout)
	group.POST("/change-password", auth, h.ChangePassword)
	group.GET("/me", auth, h.Me)
}

type auditFactory func(action, resource string) gin.HandlerFunc

// Account decisions are audited by UserService with old and new values.
func registerUsers(group *gin.RouterGroup, h *handler.UserHandler, privileged, adminOnly gin.HandlerFunc) {
	group.GET("", privileged, h.List)
	group.GET("/:id", middleware.RequireSelfOrRoles("id", warden, admin), h.Get)
	group.PUT("/:id/profile", h.UpdateProfile)
	group.PATCH("/:id/approve", adminOnly, h.Approve)
	group.PATCH("/:id/reject", adminOnly, h.Reject)
	group.PATCH("/:id/status", adminOnly, h.SetStatus)
	group.PATCH("/:id/role", adminOnly, h.ChangeRole)
}

func registerAttendance(group *gin.RouterGroup, h *handler.AttendanceHandler, privileged gin.HandlerFunc) {
	group.POST("/mark", middleware.RequireRoles(student), h.MarkSelf)
	group.GET("/student/:studentId", middleware.RequireSelfOrRoles("studentId", warden, admin), h.ForStudent)

	group.POST("", privileged, h.Mark)
	group.GET("", privileged, h.List)
	group.GET("/pending", privileged, h.Pending)
	group.POST("/bulk-approve", privileged, h.BulkApprove)
	group.PUT("/:id", privileged, h.Update)
	group.PATCH("/:id/approve", privileged, h.Approve)
	group.PATCH("/:id/reject", privileged, h.Reject)
}

func registerMess(group *gin.RouterGroup, h *handler.MessHandler, privileged gin.HandlerFunc, audit auditFactory) {
	rates := group.Group("/rates")
	rates.GET("", h.ListRates)
	rates.GET("/effective", h.EffectiveRate)
	rates.POST("", privileged, audit(models.AuditActionRateUpdate, "mess_rate"), h.CreateRate)
	rates.PUT("/:id", privileged, audit(models.AuditActionRateUpdate, "mess_rate"), h.UpdateRate)

	bills := group.Group("/bills")
	bills.GET("/student/:studentId", middleware.RequireSelfOrRoles("studentId", warden, admin), h.StudentBills)
	bills.GET("/download", h.Download)
	bills.GET("/:id", h.GetBill)

	bills.GET("", privileged, h.ListBills)
	bills.POST("/generate", privileged, audit(models.AuditActionBillGenerate, "mess_bill"), h.GenerateBill)
	bills.POST("/generate-bulk", privileged, audit(models.AuditActionBillGenerate, "mess_bill"), h.GenerateBulk)
	bills.POST("/export", privileged, h.ExportBills)
	bills.PUT("/:id", privileged, h.UpdateBill)
	bills.PATCH("/:id/payment", privileged, h.UpdatePayment)
}

func registerComplaints(group *gin.RouterGroup, h *handler.ComplaintHandler, privileged gin.HandlerFunc) {
	group.POST("", middleware.RequireRoles(student), h.Create)
	group.GET("/mine", middleware.RequireRoles(student), h.Mine)
	group.GET("/:id", h.Get)

	group.GET("", privileged, h.List)
	group.PATCH("/:id/status", privileged, h.UpdateStatus)
}

func registerWardenRequests(group *gin.RouterGroup, h *handler.WardenRequestHandler, adminOnly gin.HandlerFunc, audit auditFactory) {
	group.POST("", middleware.RequireRoles(student), h.Submit)
	group.GET("/mine", h.Mine)

	group.GET("", adminOnly, h.List)
	group.PATCH("/:id/approve", adminOnly, audit(models.AuditActionWardenDecision, "warden_request"), h.Approve)
	group.PATCH("/:id/reject", adminOnly, audit(models.AuditActionWardenDecision, "warden_request"), h.Reject)
}

func registerAnnouncements(group *gin.RouterGroup, h *handler.AnnouncementHandler, privileged gin.HandlerFunc) {
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("/:id/read", h.MarkRead)

	group.POST("", privileged, h.Create)
	group.PUT("/:id", privileged, h.Update)
	group.DELETE("/:id", privileged, h.Delete)
}

func registerRooms(group *gin.RouterGroup, h *handler.RoomHandler, privileged gin.HandlerFunc, audit auditFactory) {
	group.Use(privileged)
	group.POST("", h.Create)
	group.GET("", h.List)
	group.GET("/:id", h.Get)
	group.POST("/:id/allocate", audit(models.AuditActionRoomAllocate, "room"), h.Allocate)
	group.POST("/:id/vacate", audit(models.AuditActionRoomVacate, "room"), h.Vacate)
}
