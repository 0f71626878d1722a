package ports

import "github.com/defilive/vaultd/internal/core/domain"

type RepoManager interface {
	Challenges() domain.ChallengeRepository
	Close()
}
