package captcha

import (
	"fmt"
	"strconv"
	"testing"
)

func FuzzEvaluateArithmetic(f *testing.F) {
	f.Add(5, 8, uint8(2))
	f.Add(12, 0, uint8(3))
	f.Add(0, 7, uint8(1))

	operators := []string{"+", "-", "X", "÷"}
	f.Fuzz(func(t *testing.T, left, right int, op uint8) {
		if left < 0 || right < 0 || left > 9999 || right > 9999 {
			t.Skip()
		}
		operator := operators[int(op)%len(operators)]
		text := fmt.Sprintf("%d %s %d = ?", left, operator, right)

		got, ok := EvaluateArithmetic(text)
		if operator == "÷" && right == 0 {
			if ok {
				t.Fatalf("%q: division by zero evaluated to %q", text, got)
			}
			return
		}
		if !ok {
			t.Fatalf("%q: not recognized as arithmetic", text)
		}

		var want int
		switch operator {
		case "+":
			want = left + right
		case "-":
			want = left - right
		case "X":
			want = left * right
		case "÷":
			want = left / right
		}
		if got != strconv.Itoa(want) {
			t.Fatalf("%q: got %q, want %d", text, got, want)
		}

		if _, ok := EvaluateArithmetic(fmt.Sprintf("%d%s%d", left, operator, right)); ok {
			t.Fatalf("text without '=' must not be arithmetic")
		}
	})
}
