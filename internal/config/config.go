package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application level configuration loaded from environment variables
// and an optional config.yaml.
type Config struct {
	ServerPort string

	MySQLDSN       string
	DBMaxOpenConns int
	DBMaxIdleConns int
	ResetDB        bool

	RedisAddr string
	RedisDB   int
	RedisPass string

	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	LogLevel  string
	LogFormat string

	AppTitle       string
	AppDescription string
	AppVersion     string
	Flag           string
	SwaggerHost    string

	AdminUsername string
	AdminPassword string

	Policy Policy
}

// Policy selects which vulnerable behaviour each surface exhibits.
// Defaults reproduce the latest vulnerable release.
type Policy struct {
	// CaseInsensitiveUsernames lowercases usernames before storage and lookup.
	CaseInsensitiveUsernames bool
	// TrustSignupAdminFlag copies a client supplied is_admin onto new accounts.
	TrustSignupAdminFlag bool
	// AllowNotesUserOverride lets GET /notes read any user's notes via user-id.
	AllowNotesUserOverride bool
	// UnsafeNoteRendering compiles note text as template source.
	UnsafeNoteRendering bool
	// StrictNoteView restricts GET /notes/{id} to the note owner.
	StrictNoteView bool
}

// VulnerablePolicy returns the policy shipped by default.
func VulnerablePolicy() Policy {
	return Policy{
		CaseInsensitiveUsernames: true,
		TrustSignupAdminFlag:     true,
		AllowNotesUserOverride:   true,
		UnsafeNoteRendering:      true,
		StrictNoteView:           false,
	}
}

// Load builds Config from environment with sensible defaults.
func Load() *Config {
	return FromViper(newViper())
}

// FromViper reads every setting out of v. Exposed for tests.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		ServerPort:     v.GetString("server.port"),
		MySQLDSN:       v.GetString("database.dsn"),
		DBMaxOpenConns: v.GetInt("database.max_open_conns"),
		DBMaxIdleConns: v.GetInt("database.max_idle_conns"),
		ResetDB:        v.GetBool("database.reset"),
		RedisAddr:      v.GetString("redis.addr"),
		RedisDB:        v.GetInt("redis.db"),
		RedisPass:      v.GetString("redis.password"),
		JWTSecret:      v.GetString("auth.secret"),
		TokenTTL:       v.GetDuration("auth.token_ttl"),
		BcryptCost:     v.GetInt("auth.bcrypt_cost"),
		LogLevel:       v.GetString("log.level"),
		LogFormat:      v.GetString("log.format"),
		AppTitle:       v.GetString("app.title"),
		AppDescription: v.GetString("app.description"),
		AppVersion:     v.GetString("app.version"),
		Flag:           v.GetString("app.flag"),
		SwaggerHost:    v.GetString("swagger.host"),
		AdminUsername:  v.GetString("admin.username"),
		AdminPassword:  v.GetString("admin.password"),
		Policy: Policy{
			CaseInsensitiveUsernames: v.GetBool("policy.case_insensitive_usernames"),
			TrustSignupAdminFlag:     v.GetBool("policy.trust_signup_admin_flag"),
			AllowNotesUserOverride:   v.GetBool("policy.allow_notes_user_override"),
			UnsafeNoteRendering:      v.GetBool("policy.unsafe_note_rendering"),
			StrictNoteView:           v.GetBool("policy.strict_note_view"),
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/weakapi")
	// A missing file is fine; env and defaults still apply.
	_ = v.ReadInConfig()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindLegacyEnv(v)
	return v
}

func setDefaults(v *viper.Viper) {
	p := VulnerablePolicy()

	v.SetDefault("server.port", "8080")
	v.SetDefault("database.dsn", "user:password@tcp(localhost:3306)/app?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.reset", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("auth.secret", "change-me")
	v.SetDefault("auth.token_ttl", 5*time.Minute)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("app.title", "DVWA")
	v.SetDefault("app.description", "DAMN VULNERABLE WEB API")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.flag", "MONSEC{sup3r_s3cr3t_fl4g}")
	v.SetDefault("swagger.host", "")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")
	v.SetDefault("policy.case_insensitive_usernames", p.CaseInsensitiveUsernames)
	v.SetDefault("policy.trust_signup_admin_flag", p.TrustSignupAdminFlag)
	v.SetDefault("policy.allow_notes_user_override", p.AllowNotesUserOverride)
	v.SetDefault("policy.unsafe_note_rendering", p.UnsafeNoteRendering)
	v.SetDefault("policy.strict_note_view", p.StrictNoteView)
}

// bindLegacyEnv keeps the short variable names used by the compose files.
func bindLegacyEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("database.dsn", "MYSQL_DSN", "DATABASE_DSN")
	_ = v.BindEnv("database.max_open_conns", "DB_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.max_idle_conns", "DB_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.reset", "RESET_DB")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("auth.secret", "JWT_SECRET", "SECRET")
	_ = v.BindEnv("auth.token_ttl", "TOKEN_TTL")
	_ = v.BindEnv("auth.bcrypt_cost", "BCRYPT_COST")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")
	_ = v.BindEnv("app.title", "APP_TITLE")
	_ = v.BindEnv("app.description", "APP_DESCRIPTION")
	_ = v.BindEnv("app.version", "APP_VERSION")
	_ = v.BindEnv("app.flag", "FLAG")
	_ = v.BindEnv("swagger.host", "SWAGGER_HOST")
	_ = v.BindEnv("admin.username", "ADMIN_USERNAME")
	_ = v.BindEnv("admin.password", "ADMIN_PASSWORD")
	_ = v.BindEnv("policy.case_insensitive_usernames", "POLICY_CASE_INSENSITIVE_USERNAMES")
	_ = v.BindEnv("policy.trust_signup_admin_flag", "POLICY_TRUST_SIGNUP_ADMIN_FLAG")
	_ = v.BindEnv("policy.allow_notes_user_override", "POLICY_ALLOW_NOTES_USER_OVERRIDE")
	_ = v.BindEnv("policy.unsafe_note_rendering", "POLICY_UNSAFE_NOTE_RENDERING")
	_ = v.BindEnv("policy.strict_note_view", "POLICY_STRICT_NOTE_VIEW")
}
