package model

import "fmt"

// ValidateScore checks a rating score is in [1, 5].
func ValidateScore(score uint8) error {
	if score < 1 || score > 5 {
		return fmt.Errorf("score %d: %w", score, ErrRatingOutOfRange)
	}
	return nil
}

// ValidateByteField checks a variable-length byte field against its cap.
func ValidateByteField(name string, b []byte, max int) error {
	if len(b) > max {
		return fmt.Errorf("%s is %d bytes, max %d: %w", name, len(b), max, ErrBytesTooLarge)
	}
	return nil
}
