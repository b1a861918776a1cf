package subscribers

import (
	"context"
	"strings"

	"github.com/cornman/cornman-backend/pkg/manychat"
)

type phoneFinder interface {
	FindSubscriberByPhone(ctx context.Context, phone string) (*manychat.Subscriber, error)
}

// Resolver finds the ManyChat subscriber behind a storefront customer. It checks the
// local subscriber table first and then asks ManyChat by phone number.
type Resolver struct {
	repo   Repository
	remote phoneFinder
}

// NewResolver builds a resolver. remote may be nil when no API key is configured.
func NewResolver(repo Repository, remote phoneFinder) *Resolver {
	return &Resolver{repo: repo, remote: remote}
}

// SubscriberIDFor returns the ManyChat subscriber id for the customer, or "" when unknown.
func (r *Resolver) SubscriberIDFor(ctx context.Context, customerID, phone string) (string, error) {
	if r == nil {
		return "", nil
	}
	if id := strings.TrimSpace(customerID); id != "" && r.repo != nil {
		sub, err := r.repo.FindByManyChatID(ctx, id)
		if err != nil {
			return "", err
		}
		if sub != nil {
			return sub.ManyChatID, nil
		}
	}

	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}
	if r.repo != nil {
		sub, err := r.repo.FindByPhone(ctx, phone)
		if err != nil {
			return "", err
		}
		if sub != nil {
			return sub.ManyChatID, nil
		}
	}
	if r.remote == nil {
		return "", nil
	}
	remote, err := r.remote.FindSubscriberByPhone(ctx, phone)
	if err != nil {
		return "", err
	}
	if remote == nil {
		return "", nil
	}
	return remote.ID, nil
}
