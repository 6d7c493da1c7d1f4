package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

func (l LogLevel) rank() int32 {
	switch l {
	case LevelDebug:
		return 0
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

// ParseLevel accepts the operator-facing names DEBUG, INFO, WARNING,
// ERROR and CRITICAL as well as the lowercase level names.
func ParseLevel(value string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error", "critical":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

type LogEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     LogLevel               `json:"level"`
	Action    string                 `json:"action"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Error     string                 `json:"error,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
}

type Logger struct {
	mu       sync.Mutex
	output   io.Writer
	minLevel atomic.Int32
}

var globalLogger *Logger

func New(output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	l := &Logger{output: output}
	l.minLevel.Store(LevelInfo.rank())
	return l
}

func Init() {
	globalLogger = New(os.Stdout)
}

// InitWithWriter installs a global logger writing to w. Tests use it to
// capture output.
func InitWithWriter(w io.Writer) {
	globalLogger = New(w)
}

// SetLevel drops entries below level from then on.
func SetLevel(level LogLevel) {
	if globalLogger != nil {
		globalLogger.minLevel.Store(level.rank())
	}
}

func (l *Logger) log(level LogLevel, action string, requestID string, details map[string]interface{}, err error) {
	if level.rank() < l.minLevel.Load() {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Action:    action,
		Details:   details,
		RequestID: requestID,
		Caller:    getCaller(),
	}

	if err != nil {
		entry.Error = err.Error()
	}

	data, _ := json.Marshal(entry)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.output == os.Stdout {
		var colorCode string
		switch level {
		case LevelError:
			colorCode = "\033[31m"
		case LevelWarn:
			colorCode = "\033[33m"
		case LevelDebug:
			colorCode = "\033[90m"
		default:
			colorCode = "\033[36m"
		}
		reset := "\033[0m"
		fmt.Fprintf(l.output, "%s%s%s\n", colorCode, string(data), reset)
	} else {
		fmt.Fprintf(l.output, "%s\n", string(data))
	}
}

func Debug(action string, details map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.log(LevelDebug, action, "", details, nil)
	}
}

func Info(action string, details map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.log(LevelInfo, action, "", details, nil)
	}
}

func InfoWithRequest(requestID string, action string, details map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.log(LevelInfo, action, requestID, details, nil)
	}
}

func Warn(action string, details map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.log(LevelWarn, action, "", details, nil)
	}
}

func WarnWithRequest(requestID string, action string, details map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.log(LevelWarn, action, requestID, details, nil)
	}
}

func Error(action string, err error, details map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.log(LevelError, action, "", details, err)
	}
}

func ErrorWithRequest(requestID string, action string, err error, details map[string]interface{}) {
	if globalLogger != nil {
		globalLogger.log(LevelError, action, requestID, details, err)
	}
}

func GetRequestIDFromContext(c *fiber.Ctx) string {
	if requestID, ok := c.Locals("requestID").(string); ok {
		return requestID
	}
	return ""
}

func getCaller() string {
	if _, file, line, ok := runtime.Caller(3); ok {
		return fmt.Sprintf("%s:%d", file, line)
	}
	return ""
}

var sensitiveFields = []string{"token", "plexToken", "adminToken", "secret", "secretKey"}

func redactSensitiveFields(jsonMap map[string]interface{}) {
	for _, field := range sensitiveFields {
		if _, exists := jsonMap[field]; exists {
			jsonMap[field] = "[REDACTED]"
		}
	}
}

func GetRequestBodySummary(c *fiber.Ctx) string {
	body := c.Body()
	if len(body) == 0 {
		return "empty"
	}

	if len(body) > 1024 {
		return fmt.Sprintf("large (%d bytes)", len(body))
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(body, &jsonMap); err == nil {
		redactSensitiveFields(jsonMap)
		if jsonBytes, err := json.Marshal(jsonMap); err == nil {
			if len(jsonBytes) > 200 {
				return string(jsonBytes[:200]) + "..."
			}
			return string(jsonBytes)
		}
	}

	return fmt.Sprintf("binary (%d bytes)", len(body))
}

func GetResponseSizeSummary(c *fiber.Ctx) string {
	response := c.Response()
	if response == nil {
		return "unknown"
	}

	body := response.Body()
	if len(body) == 0 {
		return "empty"
	}

	if len(body) > 1024 {
		return fmt.Sprintf("large (%d bytes)", len(body))
	}

	return fmt.Sprintf("small (%d bytes)", len(body))
}

func GenerateRequestID() string {
	return uuid.New().String()
}
