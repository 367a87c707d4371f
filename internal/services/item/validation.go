package item

import (
	"strings"
	"unicode/utf8"

	"github.com/rajivgeraev/rewear-api/internal/apperr"
	"github.com/rajivgeraev/rewear-api/internal/models"
)

const (
	minTitleLen       = 3
	maxTitleLen       = 100
	minDescriptionLen = 10
	maxDescriptionLen = 1000
	maxBrandLen       = 50
	maxColorLen       = 30
	maxMaterialLen    = 100
	maxLocationLen    = 100
	maxTagLen         = 20
	maxTags           = 10
	maxImages         = 5
	maxAdminNotesLen  = 500
)

var (
	categories = set("men", "women", "kids", "accessories", "shoes", "bags")
	types      = set("shirts", "pants", "dresses", "skirts", "jackets", "coats", "sweaters", "hoodies",
		"t-shirts", "jeans", "shorts", "suits", "formal", "casual", "sports", "underwear",
		"sleepwear", "swimwear", "outerwear", "other")
	sizes      = set("XS", "S", "M", "L", "XL", "XXL", "XXXL", "ONE_SIZE", "CUSTOM")
	conditions = set("new", "like_new", "good", "fair", "poor")
)

func set(values ...string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// Input редактируемые поля вещи
type Input struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Type        string         `json:"type"`
	Size        string         `json:"size"`
	Condition   string         `json:"condition"`
	Brand       string         `json:"brand"`
	Color       string         `json:"color"`
	Material    string         `json:"material"`
	Tags        []string       `json:"tags"`
	Images      []models.Image `json:"images"`
	PointsValue int            `json:"points_value"`
	Location    string         `json:"location"`
}

func bounded(value string, min, max int, field string) (string, error) {
	value = strings.TrimSpace(value)
	n := utf8.RuneCountInString(value)
	if n < min {
		if min == 1 {
			return "", apperr.New(apperr.InvalidInput, "поле %s обязательно", field)
		}
		return "", apperr.New(apperr.InvalidInput, "поле %s должно содержать не менее %d символов", field, min)
	}
	if n > max {
		return "", apperr.New(apperr.InvalidInput, "поле %s не может быть длиннее %d символов", field, max)
	}
	return value, nil
}

func oneOf(value string, allowed map[string]bool, field string) error {
	if !allowed[value] {
		return apperr.New(apperr.InvalidInput, "недопустимое значение %s: %q", field, value)
	}
	return nil
}

// normalize приводит поля к каноническому виду и проверяет ограничения
func (in *Input) normalize() error {
	var err error
	if in.Title, err = bounded(in.Title, minTitleLen, maxTitleLen, "title"); err != nil {
		return err
	}
	if in.Description, err = bounded(in.Description, minDescriptionLen, maxDescriptionLen, "description"); err != nil {
		return err
	}
	if in.Brand, err = bounded(in.Brand, 0, maxBrandLen, "brand"); err != nil {
		return err
	}
	if in.Color, err = bounded(in.Color, 1, maxColorLen, "color"); err != nil {
		return err
	}
	if in.Material, err = bounded(in.Material, 0, maxMaterialLen, "material"); err != nil {
		return err
	}
	if in.Location, err = bounded(in.Location, 0, maxLocationLen, "location"); err != nil {
		return err
	}

	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	in.Condition = strings.ToLower(strings.TrimSpace(in.Condition))
	in.Size = strings.ToUpper(strings.TrimSpace(in.Size))

	if err := oneOf(in.Category, categories, "category"); err != nil {
		return err
	}
	if err := oneOf(in.Type, types, "type"); err != nil {
		return err
	}
	if err := oneOf(in.Size, sizes, "size"); err != nil {
		return err
	}
	if err := oneOf(in.Condition, conditions, "condition"); err != nil {
		return err
	}

	if in.PointsValue < 0 {
		return apperr.New(apperr.InvalidInput, "стоимость в баллах не может быть отрицательной")
	}

	if len(in.Tags) > maxTags {
		return apperr.New(apperr.InvalidInput, "не больше %d тегов", maxTags)
	}
	tags := make([]string, 0, len(in.Tags))
	seen := make(map[string]bool, len(in.Tags))
	for _, tag := range in.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		if utf8.RuneCountInString(tag) > maxTagLen {
			return apperr.New(apperr.InvalidInput, "тег %q длиннее %d символов", tag, maxTagLen)
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	in.Tags = tags

	if len(in.Images) > maxImages {
		return apperr.New(apperr.InvalidInput, "не больше %d изображений", maxImages)
	}
	primary := false
	for i := range in.Images {
		img := &in.Images[i]
		if img.URL == "" || img.PublicID == "" {
			return apperr.New(apperr.InvalidInput, "у изображения должны быть url и public_id")
		}
		if img.IsPrimary {
			if primary {
				img.IsPrimary = false
			}
			primary = true
		}
	}
	// Первое изображение основное, если не указано иное
	if !primary && len(in.Images) > 0 {
		in.Images[0].IsPrimary = true
	}
	return nil
}

// apply переносит поля в модель
func (in *Input) apply(item *models.Item) {
	item.Title = in.Title
	item.Description = in.Description
	item.Category = in.Category
	item.Type = in.Type
	item.Size = in.Size
	item.Condition = in.Condition
	item.Brand = in.Brand
	item.Color = in.Color
	item.Material = in.Material
	item.Tags = in.Tags
	item.Images = in.Images
	item.PointsValue = in.PointsValue
	item.Location = in.Location
}

// Query параметры публичной выдачи
type Query struct {
	Category  string
	Size      string
	Condition string
	Search    string
	Page      int
	Limit     int
}

func (q *Query) normalize() error {
	q.Category = strings.ToLower(strings.TrimSpace(q.Category))
	q.Condition = strings.ToLower(strings.TrimSpace(q.Condition))
	q.Size = strings.ToUpper(strings.TrimSpace(q.Size))
	q.Search = strings.TrimSpace(q.Search)

	if q.Category != "" {
		if err := oneOf(q.Category, categories, "category"); err != nil {
			return err
		}
	}
	if q.Size != "" {
		if err := oneOf(q.Size, sizes, "size"); err != nil {
			return err
		}
	}
	if q.Condition != "" {
		if err := oneOf(q.Condition, conditions, "condition"); err != nil {
			return err
		}
	}
	q.Page, q.Limit = pageBounds(q.Page, q.Limit)
	return nil
}

const (
	defaultPageSize = 12
	maxPageSize     = 100
)

func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
