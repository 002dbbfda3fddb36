package logger

import (
	"os"
	"strings"

	"github.com/Adda-Baaj/tweet-harvester/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// S is the process logger. It stays nil until Init, and every helper below is
// a no-op while it is.
var S *zap.SugaredLogger

// Logger is what components take instead of reaching for S, so tests can
// swap in a recorder. Each call logs obj as a single structured field.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

// Init builds S from cfg. Unknown levels fall back to info. Local and dev
// environments get a console encoder; everything else is JSON.
func Init(cfg *config.Config) (Logger, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if name == "warning" {
		name = "warn"
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Env) {
	case "local", "dev", "development":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level)
	S = zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(3),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).With(zap.String("app", cfg.AppName), zap.String("env", cfg.Env)).Sugar()
	return ZapLogger{}, nil
}

// Close flushes S.
func Close() error {
	if S == nil {
		return nil
	}
	return S.Sync()
}

func write(level zapcore.Level, msg, key string, obj interface{}) {
	if S == nil {
		return
	}
	if ce := S.Desugar().Check(level, msg); ce != nil {
		ce.Write(zap.Any(key, obj))
	}
}

func InfoObj(msg, key string, obj interface{})  { write(zapcore.InfoLevel, msg, key, obj) }
func DebugObj(msg, key string, obj interface{}) { write(zapcore.DebugLevel, msg, key, obj) }
func WarnObj(msg, key string, obj interface{})  { write(zapcore.WarnLevel, msg, key, obj) }
func ErrorObj(msg, key string, obj interface{}) { write(zapcore.ErrorLevel, msg, key, obj) }

// ZapLogger sends Logger calls to S.
type ZapLogger struct{}

func (ZapLogger) InfoObj(msg, key string, obj interface{})  { InfoObj(msg, key, obj) }
func (ZapLogger) DebugObj(msg, key string, obj interface{}) { DebugObj(msg, key, obj) }
func (ZapLogger) WarnObj(msg, key string, obj interface{})  { WarnObj(msg, key, obj) }
func (ZapLogger) ErrorObj(msg, key string, obj interface{}) { ErrorObj(msg, key, obj) }

// NopLogger discards everything.
type NopLogger struct{}

func (*NopLogger) InfoObj(string, string, interface{})  {}
func (*NopLogger) DebugObj(string, string, interface{}) {}
func (*NopLogger) WarnObj(string, string, interface{})  {}
func (*NopLogger) ErrorObj(string, string, interface{}) {}

// Ensure returns log, or a NopLogger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return &NopLogger{}
	}
	return log
}
