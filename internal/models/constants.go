package models

const (
	DateLayout      = "2006-01-02"
	ClockLayout     = "15:04"
	TimestampLayout = "2006-01-02 15:04:05"
)

const (
	ParseModeMarkdown = "Markdown"
	ParseModeHTML     = "HTML"
)

// DefaultCancelNote is attached when an administrator cancels without a reason.
const DefaultCancelNote = "Reservation canceled by administration."

const (
	// DefaultRedisTTL время жизни черновика пользователя в Redis
	DefaultRedisTTL = 24 * 60 * 60 // 24 часа в секундах

	// DefaultMaxBookingDays how far ahead a reservation may be placed
	DefaultMaxBookingDays = 180

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000

	// RateLimitWrites number of reservation writes allowed per window
	RateLimitWrites = 20

	// RateLimitWindow окно ограничения частоты записей
	RateLimitWindow = 60 // 1 минута в секундах

	// SheetsCacheTTL время жизни кэша строк Google Sheets
	SheetsCacheTTL = 60 * 60 // 1 час в секундах
)

// DefaultTimeSlots are the class period boundaries offered to teachers.
var DefaultTimeSlots = []string{
	"07:30", "08:20", "09:10", "10:00", "10:20", "11:10", "12:00",
	"13:00", "13:50", "14:40", "15:30", "15:50", "16:40", "17:30",
}
