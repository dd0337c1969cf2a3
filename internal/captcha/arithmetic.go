package captcha

import (
	"regexp"
	"strconv"
	"strings"
)

// operands are at most four digits, which keeps every result within int
var arithmeticPattern = regexp.MustCompile(`^(\d{1,4})([+\-*/])(\d{1,4})$`)

var operatorReplacer = strings.NewReplacer(
	"X", "*", "x", "*", "×", "*", "÷", "/",
	" ", "", "?", "", "？", "",
)

// EvaluateArithmetic computes captchas of the form "5X8=" (yielding "40").
// Text without an "=" or that is not a single binary operation is not arithmetic.
func EvaluateArithmetic(text string) (string, bool) {
	if !strings.Contains(text, "=") {
		return "", false
	}
	expr := strings.ReplaceAll(text, "=", "")
	expr = operatorReplacer.Replace(expr)

	match := arithmeticPattern.FindStringSubmatch(expr)
	if match == nil {
		return "", false
	}
	left, err := strconv.Atoi(match[1])
	if err != nil {
		return "", false
	}
	right, err := strconv.Atoi(match[3])
	if err != nil {
		return "", false
	}

	var result int
	switch match[2] {
	case "+":
		result = left + right
	case "-":
		result = left - right
	case "*":
		result = left * right
	case "/":
		if right == 0 {
			return "", false
		}
		result = left / right
	}
	return strconv.Itoa(result), true
}
