package assert

import "time"

func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
}

func NotEmptyStr(str string) {
	if str == "" {
		panic("expected string to be non-empty")
	}
}

func PositiveDuration(d time.Duration) {
	if d <= 0 {
		panic("expected duration to be positive")
	}
}

func PositiveInt(n int) {
	if n <= 0 {
		panic("expected integer to be positive")
	}
}
