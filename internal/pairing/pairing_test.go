package pairing

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/proyeccion-moden/modengo/internal/models"
	"github.com/proyeccion-moden/modengo/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSetupKey = "workshop-setup-key"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&models.UserAuth{}, &models.Desk{},
		&models.PairingSession{}, &models.StagedDeviceToken{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func newService(t *testing.T) (*Service, *gorm.DB, *models.Desk) {
	t.Helper()
	db := openTestDB(t)
	desk := models.Desk{Name: "D1"}
	if err := db.Create(&desk).Error; err != nil {
		t.Fatal(err)
	}
	return NewService(db, 10*time.Minute, testSetupKey), db, &desk
}

var codePattern = regexp.MustCompile(`^[0-9A-F]{6}$`)

func TestRequestDeskCodeIsIdempotentWithinTTL(t *testing.T) {
	svc, _, desk := newService(t)

	first, err := svc.RequestDeskCode(desk.ID)
	if err != nil {
		t.Fatalf("RequestDeskCode failed: %v", err)
	}
	if !codePattern.MatchString(first.Code) {
		t.Errorf("Expected 6 uppercase hex characters, got %q", first.Code)
	}

	second, err := svc.RequestDeskCode(desk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Code != first.Code {
		t.Errorf("Re-request within TTL must return the same code: %q vs %q",
			first.Code, second.Code)
	}
}

func TestRequestDeskCodeAfterExpiryMintsNewCode(t *testing.T) {
	svc, db, desk := newService(t)

	first, err := svc.RequestDeskCode(desk.ID)
	if err != nil {
		t.Fatal(err)
	}

	expired := time.Now().UTC().Add(-time.Minute)
	db.Model(&models.Desk{}).Where("id = ?", desk.ID).
		Update("pairing_code_expires_at", expired)

	second, err := svc.RequestDeskCode(desk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if second.Code == first.Code {
		t.Error("Expected a fresh code after expiry")
	}
}

func TestPollStatusUnknownCodeIsExpired(t *testing.T) {
	svc, _, _ := newService(t)

	result, err := svc.PollStatus("ABC123")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusExpired {
		t.Errorf("Unknown code must read EXPIRED, got %s", result.Status)
	}
}

func TestPollStatusWaitingBeforeConfirm(t *testing.T) {
	svc, _, desk := newService(t)

	grant, _ := svc.RequestDeskCode(desk.ID)
	result, err := svc.PollStatus(grant.Code)
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusWaiting {
		t.Errorf("Expected WAITING, got %s", result.Status)
	}
	if result.DeviceToken != "" {
		t.Error("No token may leak before confirmation")
	}
}

func TestConfirmPairRejectsMismatchedCode(t *testing.T) {
	svc, db, desk := newService(t)

	if _, err := svc.RequestDeskCode(desk.ID); err != nil {
		t.Fatal(err)
	}

	err := svc.ConfirmPair(desk.ID, "ZZ99XY")
	if !errors.Is(err, ErrPairingFailed) {
		t.Fatalf("Expected ErrPairingFailed, got %v", err)
	}

	var got models.Desk
	db.First(&got, desk.ID)
	if got.DeviceTokenHash != nil {
		t.Error("A rejected confirm must not set the token hash")
	}
	var staged int64
	db.Model(&models.StagedDeviceToken{}).Count(&staged)
	if staged != 0 {
		t.Error("A rejected confirm must not stage a token")
	}
}

func TestConfirmPairRejectsExpiredCode(t *testing.T) {
	svc, db, desk := newService(t)

	grant, _ := svc.RequestDeskCode(desk.ID)
	db.Model(&models.Desk{}).Where("id = ?", desk.ID).
		Update("pairing_code_expires_at", time.Now().UTC().Add(-time.Minute))

	if err := svc.ConfirmPair(desk.ID, grant.Code); !errors.Is(err, ErrPairingFailed) {
		t.Fatalf("Expected ErrPairingFailed for expired code, got %v", err)
	}
}

func TestDirectPairingDeliversTokenExactlyOnce(t *testing.T) {
	svc, db, desk := newService(t)

	grant, _ := svc.RequestDeskCode(desk.ID)
	if err := svc.ConfirmPair(desk.ID, grant.Code); err != nil {
		t.Fatalf("ConfirmPair failed: %v", err)
	}

	first, err := svc.PollStatus(grant.Code)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != StatusPaired {
		t.Fatalf("Expected PAIRED, got %s", first.Status)
	}
	if first.DeviceToken == "" {
		t.Fatal("First poll after confirm must carry the raw token")
	}
	if first.DeskID == nil || *first.DeskID != desk.ID {
		t.Error("Expected the linked desk id")
	}

	// Only the hash persists
	var got models.Desk
	db.First(&got, desk.ID)
	if got.DeviceTokenHash == nil || *got.DeviceTokenHash != utils.HashDeviceToken(first.DeviceToken) {
		t.Error("Stored hash must match the delivered token")
	}

	second, err := svc.PollStatus(grant.Code)
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != StatusPaired {
		t.Errorf("Expected PAIRED on repeat poll, got %s", second.Status)
	}
	if second.DeviceToken != "" {
		t.Error("The raw token may be delivered at most once")
	}
}

func TestSecondConfirmWithConsumedCodeFails(t *testing.T) {
	svc, _, desk := newService(t)

	grant, _ := svc.RequestDeskCode(desk.ID)
	if err := svc.ConfirmPair(desk.ID, grant.Code); err != nil {
		t.Fatal(err)
	}
	if err := svc.ConfirmPair(desk.ID, grant.Code); !errors.Is(err, ErrPairingFailed) {
		t.Fatalf("Expected ErrPairingFailed on consumed code, got %v", err)
	}
}

func TestDeferredPairingFlow(t *testing.T) {
	svc, _, desk := newService(t)

	grant, err := svc.RequestSessionCode("", nil)
	if err != nil {
		t.Fatalf("RequestSessionCode failed: %v", err)
	}
	if grant.SessionID == nil {
		t.Fatal("Expected a session id")
	}

	// Device re-requests with its code: same session
	again, err := svc.RequestSessionCode(grant.Code, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.Code != grant.Code {
		t.Error("Re-request with a valid existing code must reuse it")
	}

	if result, _ := svc.PollStatus(grant.Code); result.Status != StatusWaiting {
		t.Fatalf("Expected WAITING before confirm, got %s", result.Status)
	}

	// Operator links the session to a desk
	if err := svc.ConfirmPair(desk.ID, grant.Code); err != nil {
		t.Fatalf("ConfirmPair via session failed: %v", err)
	}

	first, err := svc.PollStatus(grant.Code)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != StatusPaired || first.DeviceToken == "" {
		t.Fatalf("Expected PAIRED with token, got %s token=%q", first.Status, first.DeviceToken)
	}
	if first.DeskID == nil || *first.DeskID != desk.ID {
		t.Error("Expected the chosen desk id on the session poll")
	}

	second, _ := svc.PollStatus(grant.Code)
	if second.Status != StatusPaired || second.DeviceToken != "" {
		t.Error("Repeat session poll must stay PAIRED without repeating the token")
	}

	// The delivered token authenticates the desk
	authed, err := svc.Authenticate(first.DeviceToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if authed.ID != desk.ID {
		t.Error("Token must resolve to the paired desk")
	}
}

func TestRequestSessionCodeSurfacesStorageErrors(t *testing.T) {
	svc, db, _ := newService(t)

	// A broken store must fail loudly, not retry into the collision message
	if err := db.Migrator().DropTable(&models.PairingSession{}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.RequestSessionCode("", nil)
	if err == nil {
		t.Fatal("Expected an error with the session table gone")
	}
	if strings.Contains(err.Error(), "could not allocate") {
		t.Errorf("Storage failure misreported as a code collision: %v", err)
	}
}

func TestSessionConfirmIsSingleWinner(t *testing.T) {
	svc, db, desk := newService(t)

	other := models.Desk{Name: "D2"}
	if err := db.Create(&other).Error; err != nil {
		t.Fatal(err)
	}

	grant, _ := svc.RequestSessionCode("", nil)
	if err := svc.ConfirmPair(desk.ID, grant.Code); err != nil {
		t.Fatal(err)
	}

	// A competing confirm with the same code loses
	if err := svc.ConfirmPair(other.ID, grant.Code); !errors.Is(err, ErrPairingFailed) {
		t.Fatalf("Expected the second confirm to fail, got %v", err)
	}

	var session models.PairingSession
	db.Where("pairing_code = ?", grant.Code).First(&session)
	if session.DeskID == nil || *session.DeskID != desk.ID {
		t.Error("The session must stay linked to the winning desk")
	}
}

func TestExactlyOnceHandoffSurvivesServiceRestart(t *testing.T) {
	svc, db, desk := newService(t)

	grant, _ := svc.RequestDeskCode(desk.ID)
	if err := svc.ConfirmPair(desk.ID, grant.Code); err != nil {
		t.Fatal(err)
	}

	// A new service instance over the same database still owes the device
	// its one token delivery
	restarted := NewService(db, 10*time.Minute, testSetupKey)
	first, err := restarted.PollStatus(grant.Code)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != StatusPaired || first.DeviceToken == "" {
		t.Fatal("Staged token must survive a restart")
	}
	second, _ := restarted.PollStatus(grant.Code)
	if second.DeviceToken != "" {
		t.Error("The token must still be delivered at most once")
	}
}

func TestAuthenticateIsUniform(t *testing.T) {
	svc, _, desk := newService(t)

	grant, _ := svc.RequestDeskCode(desk.ID)
	svc.ConfirmPair(desk.ID, grant.Code)

	cases := []string{"", "bogus", "0000000000000000000000000000000000000000000000000000000000000000"}
	for _, token := range cases {
		_, err := svc.Authenticate(token)
		if !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("Authenticate(%q): expected uniform ErrUnauthenticated, got %v", token, err)
		}
	}
}

func TestHeartbeatUpdatesLastSeen(t *testing.T) {
	svc, db, desk := newService(t)

	if err := svc.Heartbeat(desk.ID, &HeartbeatInfo{LastError: "projector bulb warning"}); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}

	var got models.Desk
	db.First(&got, desk.ID)
	if got.LastSeen == nil {
		t.Error("Expected last_seen to be set")
	}
	if got.LastError != "projector bulb warning" {
		t.Errorf("Expected diagnostics recorded, got %q", got.LastError)
	}
}

func TestUnbindClearsCredentialAndStagedSecret(t *testing.T) {
	svc, db, desk := newService(t)

	grant, _ := svc.RequestDeskCode(desk.ID)
	if err := svc.ConfirmPair(desk.ID, grant.Code); err != nil {
		t.Fatal(err)
	}

	if err := svc.Unbind(desk.ID); err != nil {
		t.Fatalf("Unbind failed: %v", err)
	}

	var got models.Desk
	db.First(&got, desk.ID)
	if got.DeviceTokenHash != nil || got.PairingCode != nil || got.PairingCodeExpiresAt != nil {
		t.Error("Unbind must clear the credential and pairing fields")
	}
	var staged int64
	db.Model(&models.StagedDeviceToken{}).Where("desk_id = ?", desk.ID).Count(&staged)
	if staged != 0 {
		t.Error("Unbind must clear staged secrets")
	}
}

func TestRevokeRequiresCredential(t *testing.T) {
	svc, db, desk := newService(t)

	grant, _ := svc.RequestDeskCode(desk.ID)
	svc.ConfirmPair(desk.ID, grant.Code)

	if err := svc.Revoke(desk.ID, "wrong-key", nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Expected ErrForbidden, got %v", err)
	}

	var got models.Desk
	db.First(&got, desk.ID)
	if got.DeviceTokenHash == nil {
		t.Fatal("A rejected revoke must leave the binding intact")
	}

	if err := svc.Revoke(desk.ID, testSetupKey, nil); err != nil {
		t.Fatalf("Revoke with setup key failed: %v", err)
	}
	db.First(&got, desk.ID)
	if got.DeviceTokenHash != nil {
		t.Error("Revoke must clear the device token hash")
	}
}

func TestRevokeAcceptsSupervisor(t *testing.T) {
	svc, db, desk := newService(t)

	grant, _ := svc.RequestDeskCode(desk.ID)
	svc.ConfirmPair(desk.ID, grant.Code)

	supervisor := &models.UserAuth{
		ID: "00000000-0000-0000-0000-000000000003", Username: "sup",
		Email: "sup@example.com", Password: "x", Role: models.RoleSupervisor,
	}
	if err := svc.Revoke(desk.ID, "", supervisor); err != nil {
		t.Fatalf("Supervisor revoke failed: %v", err)
	}

	var got models.Desk
	db.First(&got, desk.ID)
	if got.DeviceTokenHash != nil {
		t.Error("Supervisor revoke must clear the device token hash")
	}
}

func TestPurgeExpiredSessions(t *testing.T) {
	svc, db, desk := newService(t)

	stale, _ := svc.RequestSessionCode("", nil)
	db.Model(&models.PairingSession{}).Where("pairing_code = ?", stale.Code).
		Update("expires_at", time.Now().UTC().Add(-time.Hour))

	linked, _ := svc.RequestSessionCode("", nil)
	if err := svc.ConfirmPair(desk.ID, linked.Code); err != nil {
		t.Fatal(err)
	}

	purged, err := svc.PurgeExpiredSessions()
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("Expected 1 purged session, got %d", purged)
	}

	// The linked session survives for polling continuity
	var remaining int64
	db.Model(&models.PairingSession{}).Count(&remaining)
	if remaining != 1 {
		t.Errorf("Expected 1 remaining session, got %d", remaining)
	}
}
