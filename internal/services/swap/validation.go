package swap

import (
	"strings"
	"unicode/utf8"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/models"
)

// Ограничения длины текстовых полей запроса
const (
	maxMessageLen    = 500
	maxLocationLen   = 200
	maxTimeLen       = 50
	maxPhoneLen      = 20
	maxEmailLen      = 254
	maxReasonLen     = 200
	maxAdminNotesLen = 500
)

// text обрезает пробелы и проверяет длину в символах
func text(value string, max int, field string) (string, error) {
	value = strings.TrimSpace(value)
	if utf8.RuneCountInString(value) > max {
		return "", apperr.New(apperr.InvalidInput, "поле %s не может быть длиннее %d символов", field, max)
	}
	return value, nil
}

func normalizeMeeting(m models.Meeting) (models.Meeting, error) {
	var err error
	if m.Location, err = text(m.Location, maxLocationLen, "meeting_location"); err != nil {
		return m, err
	}
	if m.Time, err = text(m.Time, maxTimeLen, "meeting_time"); err != nil {
		return m, err
	}
	if m.ContactPhone, err = text(m.ContactPhone, maxPhoneLen, "contact_phone"); err != nil {
		return m, err
	}
	if m.ContactEmail, err = text(strings.ToLower(m.ContactEmail), maxEmailLen, "contact_email"); err != nil {
		return m, err
	}
	if m.ContactEmail != "" && !strings.Contains(m.ContactEmail, "@") {
		return m, apperr.New(apperr.InvalidInput, "неверный формат email")
	}
	if m.Date != nil {
		d := m.Date.UTC()
		m.Date = &d
	}
	return m, nil
}

func (in *CreateInput) normalize() error {
	var err error
	if in.Message, err = text(in.Message, maxMessageLen, "message"); err != nil {
		return err
	}
	if in.Meeting, err = normalizeMeeting(in.Meeting); err != nil {
		return err
	}
	if !in.IsPointsRedemption {
		if in.OfferedItemID == nil {
			return apperr.New(apperr.InvalidInput, "укажите вещь, которую предлагаете для обмена")
		}
		// Баллы учитываются только при обмене на баллы
		in.PointsOffered = 0
	}
	return nil
}
