package application

import "home-security/internal/domain"

type IntentExtractor interface {
	Extract(text string) domain.Command
}
