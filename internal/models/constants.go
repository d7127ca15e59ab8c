package models

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleFunction  = "function"
)

const (
	// DateLayout is the calendar-date wire format.
	DateLayout = "2006-01-02"

	// TimeLayout is the time-of-day wire format, 24h, minute resolution.
	TimeLayout = "15:04"
)

const (
	// DefaultSessionTTL время жизни сессии разговора в Redis
	DefaultSessionTTL = 24 * 60 * 60 // 24 часа в секундах

	// DefaultMaxIterations предел итераций диалогового цикла за один запрос
	DefaultMaxIterations = 5

	// DefaultMaxHistoryTurns размер скользящего окна истории
	DefaultMaxHistoryTurns = 40

	// DefaultDurationMinutes длительность услуги, если каталог молчит
	DefaultDurationMinutes = 60

	// DefaultSlotStepMinutes шаг перебора слотов при подборе альтернатив
	DefaultSlotStepMinutes = 30

	// DefaultSearchDays горизонт поиска альтернативных слотов в днях
	DefaultSearchDays = 7

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = 60 // 1 минута в секундах

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 1000
)
