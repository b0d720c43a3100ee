package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"campusauth/internal/modules/auth/domain"
	"campusauth/internal/modules/auth/infra" // in-memory
	pg "campusauth/internal/modules/auth/infra/pg"
	"campusauth/internal/platform/events"
	plathttp "campusauth/internal/platform/http"
	"campusauth/internal/platform/security"
	"campusauth/internal/policy"
)

// Repos groups the storage the module runs on.
type Repos struct {
	Users    domain.UserRepo
	Sessions domain.SessionRepo
	Codes    domain.CodeRepo
}

// MemoryRepos keeps everything in process memory.
func MemoryRepos(cooldown time.Duration) Repos {
	return Repos{
		Users:    infra.NewMemUserRepo(),
		Sessions: infra.NewMemSessionRepo(),
		Codes:    infra.NewMemCodeRepo(cooldown),
	}
}

// PostgresRepos stores users and sessions in Postgres. Codes go to codes
// when given, otherwise to Postgres as well.
func PostgresRepos(db *pgxpool.Pool, codes domain.CodeRepo, cooldown time.Duration) Repos {
	if codes == nil {
		codes = pg.NewCodeRepo(db, cooldown)
	}
	return Repos{
		Users:    pg.NewUserRepo(db),
		Sessions: pg.NewSessionRepo(db),
		Codes:    codes,
	}
}

type Options struct {
	JWT        *security.JWTManager
	Domains    policy.AllowList
	CodeTTL    time.Duration
	RefreshTTL time.Duration
	// AllowDevMode lets requests with dev_mode=true receive the code in the
	// response instead of by email.
	AllowDevMode bool

	Mailer  Mailer
	Storage ObjectStore
	Vision  NameReader
	Events  events.Publisher
	// RateLimit guards the unauthenticated routes when set.
	RateLimit fiber.Handler
	Logger    *zap.Logger
}

// Module wires up dependencies for the auth HTTP module.
type Module struct {
	repos Repos
	opts  Options
}

func NewModule(repos Repos, opts Options) *Module {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.CodeTTL == 0 {
		opts.CodeTTL = 10 * time.Minute
	}
	if opts.RefreshTTL == 0 {
		opts.RefreshTTL = 30 * 24 * time.Hour
	}
	opts.Logger = opts.Logger.Named("auth")
	return &Module{repos: repos, opts: opts}
}

func (m *Module) Register(r fiber.Router) {
	o := m.opts
	is := &issuer{
		codes:    m.repos.Codes,
		jwt:      o.JWT,
		mailer:   o.Mailer,
		codeTTL:  o.CodeTTL,
		allowDev: o.AllowDevMode,
		logger:   o.Logger,
	}
	g := &granter{
		users:      m.repos.Users,
		sessions:   m.repos.Sessions,
		jwt:        o.JWT,
		events:     o.Events,
		refreshTTL: o.RefreshTTL,
		logger:     o.Logger,
	}

	auth := r.Group("/auth")
	auth.Get("/ping", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"module": "auth", "ok": true}) })

	// -------- public --------
	// Middleware goes on each route; a group on "" would apply it to every
	// path under /auth.
	public := func(method, path string, h fiber.Handler) {
		if o.RateLimit != nil {
			auth.Add(method, path, o.RateLimit, h)
			return
		}
		auth.Add(method, path, h)
	}
	public(fiber.MethodPost, "/signup", SignupHandler(m.repos.Users, o.Domains, is))
	public(fiber.MethodPost, "/login", LoginHandler(m.repos.Users, o.Domains, is))
	public(fiber.MethodPost, "/resend-otp", ResendHandler(o.Domains, is))
	public(fiber.MethodPost, "/verify-otp", VerifyOTPHandler(m.repos.Codes, g))
	public(fiber.MethodPost, "/verify-email", VerifyEmailHandler(o.JWT, m.repos.Codes, o.Domains, g))
	public(fiber.MethodPost, "/refresh", RefreshHandler(m.repos.Sessions, m.repos.Users, g))
	public(fiber.MethodGet, "/users/:user_id", PublicProfileHandler(m.repos.Users))

	// -------- protected --------
	bearer := plathttp.JWTAuth(o.JWT)
	auth.Get("/me", bearer, GetProfileHandler(m.repos.Users))
	auth.Patch("/me", bearer, UpdateProfileHandler(m.repos.Users, o.Logger))
	auth.Post("/verify-name", bearer, VerifyNameHandler(m.repos.Users, g))
	auth.Post("/upload-id", bearer, UploadIDHandler(m.repos.Users, o.Storage, o.Logger))
	auth.Post("/verify-id", bearer, VerifyIDHandler(m.repos.Users, o.Storage, o.Vision, g))
	auth.Get("/user/devices", bearer, ListDevicesHandler(m.repos.Sessions, o.Logger))
	auth.Delete("/user/devices/:device_id", bearer, DeleteDeviceHandler(m.repos.Sessions))
	auth.Delete("/session", bearer, DeleteCurrentSessionHandler(m.repos.Sessions, o.Logger))
}
