package nakama

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fabianaguero/truco/internal/app/onboarding"

	"github.com/form3tech-oss/jwt-go"
	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

type afterAuthenticateDeviceFunc = func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, out *api.Session, in *api.AuthenticateDeviceRequest) error

// newAfterAuthenticateDevice returns the hook that onboards accounts created
// by a device login: they get a table name and a roster record.
func newAfterAuthenticateDevice(newService func(nk runtime.NakamaModule) *onboarding.Service) afterAuthenticateDeviceFunc {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, out *api.Session, in *api.AuthenticateDeviceRequest) error {
		if out == nil || !out.Created {
			return nil
		}
		userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
		if userID == "" {
			resolved, err := extractUserIDFromToken(out.Token)
			if err != nil {
				logger.Error("AfterAuthenticateDevice: Failed to extract user ID from token: %v", err)
				return err
			}
			userID = resolved
		}

		result, err := newService(nk).OnboardNewUser(ctx, userID, in.GetUsername())
		if result.ProfileUpdateErr != nil {
			logger.Warn("AfterAuthenticateDevice [User:%s]: Failed to set display name: %v", userID, result.ProfileUpdateErr)
		}
		if err != nil {
			logger.Error("AfterAuthenticateDevice [User:%s]: Onboarding failed: %v", userID, err)
			return err
		}
		if !result.Registered {
			logger.Info("AfterAuthenticateDevice [User:%s]: Already on the roster", userID)
			return nil
		}
		logger.Info("AfterAuthenticateDevice [User:%s]: Joined the roster as %s", userID, result.DisplayName)
		return nil
	}
}

func defaultOnboarding(nk runtime.NakamaModule) *onboarding.Service {
	roster := NewRosterStore(nk)
	return onboarding.NewService(roster, roster, nil)
}

// extractUserIDFromToken reads the uid claim of a session token Nakama has
// just issued; the signature was produced by the server itself.
func extractUserIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	uid, ok := claims["uid"].(string)
	if !ok || uid == "" {
		return "", fmt.Errorf("token claims missing uid")
	}
	return uid, nil
}
