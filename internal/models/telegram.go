package models

import "time"

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a backup notification.
type TelegramMessage struct {
	Success    bool
	Cancelled  bool
	Device     string
	BackupRoot string
	StartTime  time.Time
	Duration   time.Duration

	// Run stats.
	Directories    int
	TotalFiles     int
	FilesCompleted int
	FilesFailed    int
	BytesWritten   int64

	// Error info (if failed).
	ErrorMessage string
	FailedPhase  string
	FailedPath   string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
