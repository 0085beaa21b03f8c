package config

const (
	DefaultBaseURL   = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultModel     = "qwen-plus"
	DefaultTimeoutMS = 120000

	DefaultMaxSteps = 24

	DefaultAddr          = "127.0.0.1:8787"
	DefaultTurnTimeoutMS = 300000

	DefaultDataDir     = "~/.forge"
	DefaultSaveDelayMS = 2500

	DefaultEventBuffer = 64
)
