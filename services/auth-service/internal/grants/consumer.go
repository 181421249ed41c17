// Package grants reacts to catalog events that change what a user may do.
package grants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/masterparty/platform/libs/kafkax"
	"github.com/masterparty/platform/services/auth-service/internal/audit"
	"github.com/masterparty/platform/services/auth-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const TopicProviderCreated = "catalog.provider.created.v1"

type Users interface {
	GrantProvider(ctx context.Context, userID, providerID string) (storage.User, error)
}

type Auditor interface {
	Record(ctx context.Context, eventType string, actorID string, metadata map[string]any) error
}

type providerCreated struct {
	ProviderID  string `json:"provider_id"`
	OwnerUserID string `json:"owner_user_id"`
	Slug        string `json:"slug"`
}

// ProviderCreated grants the prestador role to the owner of a new storefront.
func ProviderCreated(users Users, auditor Auditor, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var evt providerCreated
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return kafkax.Permanent(fmt.Errorf("decode %s: %w", msg.Topic, err))
		}
		if evt.ProviderID == "" || evt.OwnerUserID == "" {
			return kafkax.Permanent(fmt.Errorf("%s without provider_id or owner_user_id", msg.Topic))
		}

		user, err := users.GrantProvider(ctx, evt.OwnerUserID, evt.ProviderID)
		if errors.Is(err, storage.ErrNotFound) {
			logger.Warn("provider owner not found", "user_id", evt.OwnerUserID, "provider_id", evt.ProviderID)
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("provider role granted", "user_id", user.ID, "provider_id", evt.ProviderID, "roles", user.Roles)
		if auditor != nil {
			if err := auditor.Record(ctx, audit.EventProviderRole, user.ID, map[string]any{
				"provider_id": evt.ProviderID,
				"slug":        evt.Slug,
			}); err != nil {
				logger.Warn("audit record failed", "err", err)
			}
		}
		return nil
	}
}
