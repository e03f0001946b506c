package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"nexttrack/internal/errors"
)

// Logger 带组件名的日志器
type Logger struct {
	*logrus.Logger
	component string
}

// Fields 日志字段类型
type Fields map[string]interface{}

var defaultLogger *Logger

// InitLogger 初始化日志系统
func InitLogger(level string, format string, output string, component string) (*Logger, error) {
	base := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	base.SetLevel(logLevel)

	switch format {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	default:
		base.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if output != "" && output != "stdout" {
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return nil, errors.ErrConfigInvalid("logging.output", err.Error()).WithCause(err)
		}
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, errors.ErrConfigInvalid("logging.output", err.Error()).WithCause(err)
		}
		base.SetOutput(file)
	}

	defaultLogger = &Logger{Logger: base, component: component}
	return defaultLogger, nil
}

// SetOutput 替换默认日志器的输出，测试里用来静音
func SetOutput(w io.Writer) {
	GetDefaultLogger().Logger.SetOutput(w)
}

// GetDefaultLogger 获取默认日志器
func GetDefaultLogger() *Logger {
	if defaultLogger == nil {
		base := logrus.New()
		base.SetLevel(logrus.InfoLevel)
		defaultLogger = &Logger{Logger: base, component: "default"}
	}
	return defaultLogger
}

// NewLogger 创建新的组件日志器
func NewLogger(component string) *Logger {
	return &Logger{
		Logger:    GetDefaultLogger().Logger,
		component: component,
	}
}

func (l *Logger) entry(fields []Fields) *logrus.Entry {
	e := l.Logger.WithField("component", l.component)
	if len(fields) > 0 {
		e = e.WithFields(logrus.Fields(fields[0]))
	}
	return e
}

// WithFields 添加字段
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.entry([]Fields{fields})
}

// WithError 添加错误信息
func (l *Logger) WithError(err error) *logrus.Entry {
	e := l.Logger.WithField("component", l.component)
	if appErr, ok := errors.As(err); ok {
		return e.WithFields(logrus.Fields{
			"error_type":    appErr.Type,
			"error_code":    appErr.Code,
			"error_details": appErr.Details,
			"error_context": appErr.Context,
		}).WithError(err)
	}
	return e.WithError(err)
}

// LogAppError 按错误类型选择日志级别
func (l *Logger) LogAppError(err *errors.AppError, message string) {
	e := l.WithError(err)
	switch err.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeBusiness, errors.ErrorTypeAuth:
		e.Warn(message)
	default:
		e.Error(message)
	}
}

// Debug 调试日志
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.entry(fields).Debug(msg)
}

// Info 信息日志
func (l *Logger) Info(msg string, fields ...Fields) {
	l.entry(fields).Info(msg)
}

// Warn 警告日志
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.entry(fields).Warn(msg)
}

// Error 错误日志
func (l *Logger) Error(msg string, fields ...Fields) {
	l.entry(fields).Error(msg)
}

// Fatal 致命错误日志
func (l *Logger) Fatal(msg string, fields ...Fields) {
	l.entry(fields).Fatal(msg)
}

// GinMiddleware 记录每个HTTP请求
func GinMiddleware() gin.HandlerFunc {
	log := NewLogger("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("request failed", fields)
		case c.Writer.Status() >= 400:
			log.Warn("request rejected", fields)
		default:
			log.Debug("request served", fields)
		}
	}
}

// Fatal 全局致命错误日志
func Fatal(msg string, fields ...Fields) {
	GetDefaultLogger().Fatal(msg, fields...)
}
