package pairing

import (
	"errors"
	"fmt"
	"time"

	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	// ErrUnauthenticated is the uniform failure for any bad, missing or
	// stale device credential. Deliberately carries no detail so callers
	// cannot probe which desks or tokens exist.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPairingFailed is terminal for a code: expired, mismatched or
	// already consumed. The device must request a new code.
	ErrPairingFailed = errors.New("invalid or expired pairing code")

	// ErrForbidden rejects a revoke without the setup credential or an
	// elevated account
	ErrForbidden = errors.New("forbidden")
)

// Status is the pairing poll vocabulary
type Status string

const (
	StatusExpired Status = "EXPIRED"
	StatusWaiting Status = "WAITING"
	StatusPaired  Status = "PAIRED"
)

// Service implements device pairing and bearer-token authentication for
// unattended display devices. Two modes: direct (desk known up front) and
// deferred (PairingSession, desk chosen later by an operator).
type Service struct {
	db       *gorm.DB
	codeTTL  time.Duration
	setupKey string
}

// NewService creates a pairing Service. setupKey is the shared setup
// credential accepted by Revoke; empty disables that path.
func NewService(db *gorm.DB, codeTTL time.Duration, setupKey string) *Service {
	return &Service{db: db, codeTTL: codeTTL, setupKey: setupKey}
}

// CodeGrant is an issued pairing code
type CodeGrant struct {
	Code      string    `json:"pairingCode"`
	ExpiresAt time.Time `json:"expiresAt"`
	DeskID    *uint     `json:"deskId,omitempty"`
	SessionID *uint     `json:"sessionId,omitempty"`
}

// RequestDeskCode issues a pairing code directly on a desk. Re-requesting
// within the TTL returns the same code unchanged; after expiry a fresh code
// is minted.
func (s *Service) RequestDeskCode(deskID uint) (*CodeGrant, error) {
	var desk models.Desk
	if err := s.db.First(&desk, deskID).Error; err != nil {
		return nil, fmt.Errorf("desk %d: %w", deskID, err)
	}

	now := time.Now().UTC()
	if desk.PairingCode != nil && desk.PairingCodeExpiresAt != nil && desk.PairingCodeExpiresAt.After(now) {
		return &CodeGrant{
			Code:      *desk.PairingCode,
			ExpiresAt: *desk.PairingCodeExpiresAt,
			DeskID:    &desk.ID,
		}, nil
	}

	code, err := utils.GeneratePairingCode()
	if err != nil {
		return nil, err
	}
	expiresAt := now.Add(s.codeTTL)

	if err := s.db.Model(&models.Desk{}).Where("id = ?", deskID).
		Updates(map[string]interface{}{
			"pairing_code":            code,
			"pairing_code_expires_at": expiresAt,
		}).Error; err != nil {
		return nil, err
	}

	return &CodeGrant{Code: code, ExpiresAt: expiresAt, DeskID: &desk.ID}, nil
}

// RequestSessionCode issues a pairing code with no desk chosen yet. When the
// device re-requests with its still-valid existing code the same session is
// reused; otherwise a fresh session is created.
func (s *Service) RequestSessionCode(existingCode string, deviceInfo datatypes.JSON) (*CodeGrant, error) {
	now := time.Now().UTC()

	if existingCode != "" {
		var session models.PairingSession
		err := s.db.Where("pairing_code = ? AND expires_at > ?", existingCode, now).
			First(&session).Error
		if err == nil {
			return &CodeGrant{
				Code:      session.PairingCode,
				ExpiresAt: session.ExpiresAt,
				SessionID: &session.ID,
			}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	// Retry on the unique code constraint; collisions on 24 bits of code
	// space are rare but real
	for attempt := 0; attempt < 5; attempt++ {
		code, err := utils.GeneratePairingCode()
		if err != nil {
			return nil, err
		}
		session := models.PairingSession{
			PairingCode: code,
			ExpiresAt:   now.Add(s.codeTTL),
			DeviceInfo:  deviceInfo,
		}
		if err := s.db.Create(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return nil, err
		}
		return &CodeGrant{
			Code:      session.PairingCode,
			ExpiresAt: session.ExpiresAt,
			SessionID: &session.ID,
		}, nil
	}
	return nil, fmt.Errorf("could not allocate a unique pairing code")
}

// PollResult is the device's view of its pairing progress. DeviceToken is
// populated at most once per successful ConfirmPair.
type PollResult struct {
	Status      Status `json:"status"`
	DeskID      *uint  `json:"deskId,omitempty"`
	DeviceToken string `json:"deviceToken,omitempty"`
}

// PollStatus resolves a pairing code against desks first, then sessions.
// The raw device token is staged in the database and consumed on first
// delivery, so the exactly-once handoff holds across restarts.
func (s *Service) PollStatus(code string) (*PollResult, error) {
	if code == "" {
		return &PollResult{Status: StatusExpired}, nil
	}
	now := time.Now().UTC()

	var desk models.Desk
	err := s.db.Where("pairing_code = ?", code).First(&desk).Error
	if err == nil {
		return s.resolveDeskPoll(&desk, code, now)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var session models.PairingSession
	err = s.db.Where("pairing_code = ?", code).First(&session).Error
	if err == nil {
		return s.resolveSessionPoll(&session, code, now)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// Unknown codes are indistinguishable from expired ones
	return &PollResult{Status: StatusExpired}, nil
}

func (s *Service) resolveDeskPoll(desk *models.Desk, code string, now time.Time) (*PollResult, error) {
	confirmed := desk.PairingCodeExpiresAt == nil && desk.DeviceTokenHash != nil
	if !confirmed {
		if desk.PairingCodeExpiresAt == nil || !desk.PairingCodeExpiresAt.After(now) {
			return &PollResult{Status: StatusExpired}, nil
		}
		return &PollResult{Status: StatusWaiting, DeskID: &desk.ID}, nil
	}

	token, err := s.consumeStagedToken(code)
	if err != nil {
		return nil, err
	}
	return &PollResult{Status: StatusPaired, DeskID: &desk.ID, DeviceToken: token}, nil
}

func (s *Service) resolveSessionPoll(session *models.PairingSession, code string, now time.Time) (*PollResult, error) {
	if session.DeviceTokenHash != nil && session.DeskID != nil {
		token, err := s.consumeStagedToken(code)
		if err != nil {
			return nil, err
		}
		return &PollResult{Status: StatusPaired, DeskID: session.DeskID, DeviceToken: token}, nil
	}
	if !session.ExpiresAt.After(now) {
		return &PollResult{Status: StatusExpired}, nil
	}
	return &PollResult{Status: StatusWaiting}, nil
}

// consumeStagedToken reads and clears the staged raw token for a code.
// The delete is the test-and-set: of two concurrent polls only the one
// whose delete hits a row gets the token.
func (s *Service) consumeStagedToken(code string) (string, error) {
	var token string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var staged models.StagedDeviceToken
		err := tx.Where("pairing_code = ?", code).First(&staged).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		res := tx.Delete(&models.StagedDeviceToken{}, staged.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			token = staged.Token
		}
		return nil
	})
	return token, err
}

// ConfirmPair binds a device to a desk by pairing code. The code is matched
// against the desk's own code (direct mode) or an unlinked session (deferred
// mode, which is then linked to the desk). Consuming the code is a
// conditional update, so of two concurrent confirms exactly one wins and the
// other fails with ErrPairingFailed. On success the desk keeps only the
// token hash; the raw token is staged for one retrieval via PollStatus.
func (s *Service) ConfirmPair(deskID uint, code string) error {
	var desk models.Desk
	if err := s.db.First(&desk, deskID).Error; err != nil {
		return fmt.Errorf("desk %d: %w", deskID, err)
	}
	if code == "" {
		return ErrPairingFailed
	}

	token, err := utils.GenerateDeviceToken()
	if err != nil {
		return err
	}
	hash := utils.HashDeviceToken(token)
	now := time.Now().UTC()

	return s.db.Transaction(func(tx *gorm.DB) error {
		// Direct mode: the code lives on the desk itself. Consumption
		// nulls the expiry while keeping the code, so later status polls
		// still resolve to PAIRED.
		res := tx.Model(&models.Desk{}).
			Where("id = ? AND pairing_code = ? AND pairing_code_expires_at IS NOT NULL AND pairing_code_expires_at > ?",
				deskID, code, now).
			Updates(map[string]interface{}{
				"device_token_hash":       hash,
				"pairing_code_expires_at": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return s.stageToken(tx, deskID, nil, code, token)
		}

		// Deferred mode: an unlinked session holds the code. Linking the
		// desk is the consume step.
		var session models.PairingSession
		err := tx.Where("pairing_code = ?", code).First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPairingFailed
		}
		if err != nil {
			return err
		}

		res = tx.Model(&models.PairingSession{}).
			Where("id = ? AND desk_id IS NULL AND expires_at > ?", session.ID, now).
			Updates(map[string]interface{}{
				"desk_id":           deskID,
				"device_token_hash": hash,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrPairingFailed
		}

		if err := tx.Model(&models.Desk{}).Where("id = ?", deskID).
			Update("device_token_hash", hash).Error; err != nil {
			return err
		}
		return s.stageToken(tx, deskID, &session.ID, code, token)
	})
}

// stageToken replaces any previously staged secret for the desk
func (s *Service) stageToken(tx *gorm.DB, deskID uint, sessionID *uint, code, token string) error {
	if err := tx.Where("desk_id = ?", deskID).
		Delete(&models.StagedDeviceToken{}).Error; err != nil {
		return err
	}
	return tx.Create(&models.StagedDeviceToken{
		DeskID:      deskID,
		SessionID:   sessionID,
		PairingCode: code,
		Token:       token,
	}).Error
}

// Authenticate resolves a bearer token to its desk by exact hash match.
// Every failure mode collapses to ErrUnauthenticated.
func (s *Service) Authenticate(bearerToken string) (*models.Desk, error) {
	if bearerToken == "" {
		return nil, ErrUnauthenticated
	}
	hash := utils.HashDeviceToken(bearerToken)

	var desk models.Desk
	if err := s.db.Where("device_token_hash = ?", hash).First(&desk).Error; err != nil {
		return nil, ErrUnauthenticated
	}
	return &desk, nil
}

// HeartbeatInfo carries optional device diagnostics
type HeartbeatInfo struct {
	LastError string `json:"lastError,omitempty"`
}

// Heartbeat records that the device is alive and optionally its last error.
// Never touches queue state.
func (s *Service) Heartbeat(deskID uint, info *HeartbeatInfo) error {
	updates := map[string]interface{}{
		"last_seen": time.Now().UTC(),
	}
	if info != nil && info.LastError != "" {
		updates["last_error"] = info.LastError
	}
	return s.db.Model(&models.Desk{}).Where("id = ?", deskID).
		Updates(updates).Error
}

// Unbind clears a desk's device credential, pairing code and any staged
// secret, so a new pairing can start clean
func (s *Service) Unbind(deskID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Desk{}).Where("id = ?", deskID).
			Updates(map[string]interface{}{
				"device_token_hash":       nil,
				"pairing_code":            nil,
				"pairing_code_expires_at": nil,
			}).Error; err != nil {
			return err
		}
		return tx.Where("desk_id = ?", deskID).
			Delete(&models.StagedDeviceToken{}).Error
	})
}

// Revoke is Unbind gated by the shared setup credential or an elevated
// account
func (s *Service) Revoke(deskID uint, credential string, actor *models.UserAuth) error {
	allowed := s.setupKey != "" && credential == s.setupKey
	if !allowed && actor != nil && actor.IsSupervisor() {
		allowed = true
	}
	if !allowed {
		return ErrForbidden
	}
	return s.Unbind(deskID)
}

// PurgeExpiredSessions drops pairing sessions whose code lapsed without a
// confirm. Linked sessions are kept for polling continuity.
func (s *Service) PurgeExpiredSessions() (int64, error) {
	res := s.db.Where("expires_at < ? AND desk_id IS NULL", time.Now().UTC()).
		Delete(&models.PairingSession{})
	return res.RowsAffected, res.Error
}
