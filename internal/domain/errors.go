package domain

import "errors"

var (
	ErrFileNotFound        = errors.New("file not found")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)
