package shared

import (
	"errors"

	"github.com/dialect-so/core/internal/models"
	"github.com/dialect-so/core/internal/modules/gateway/gateway"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	hub gateway.Broadcaster
}

func NewService(db *gorm.DB, hub gateway.Broadcaster) *Service {
	return &Service{db: db, hub: hub}
}

// Ensure creates the shared content ref for a message, or returns the
// existing one. A message carries at most one ref; the unique index on
// message_id backs that up under concurrent creates.
func (s *Service) Ensure(messageID, roomID, userID, contentURL string) (*models.SharedContentModel, error) {
	existing, err := s.GetByMessageID(messageID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	sc := &models.SharedContentModel{
		MessageID:       messageID,
		RoomID:          roomID,
		UserID:          userID,
		ContentURL:      contentURL,
		Status:          models.ContentPending,
		AISummaryStatus: models.SummaryPending,
	}
	if err := s.db.Create(sc).Error; err != nil {
		if isDuplicateKeyError(err) {
			return s.GetByMessageID(messageID)
		}
		return nil, err
	}

	if s.hub != nil {
		s.hub.BroadcastRoom(sc.RoomID, gateway.EventContentUpdated, map[string]interface{}{
			"id":        sc.ID,
			"messageId": sc.MessageID,
			"status":    sc.Status,
		})
	}
	return sc, nil
}

func (s *Service) GetByID(id string) (*models.SharedContentModel, error) {
	var sc models.SharedContentModel
	err := s.db.Where("id = ?", id).First(&sc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Service) GetByMessageID(messageID string) (*models.SharedContentModel, error) {
	var sc models.SharedContentModel
	err := s.db.Where("message_id = ?", messageID).First(&sc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
