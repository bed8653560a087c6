package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/cppla/teamfeed/models"
	"github.com/cppla/teamfeed/storage"
	"github.com/cppla/teamfeed/utils"
)

// Image slots of an account.
const (
	ImageAvatar = "avatar"
	ImageCover  = "cover"
)

const maxUsernameTries = 1000

// AccountView is the client representation of an account.
type AccountView struct {
	ID          uint      `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Bio         string    `json:"bio"`
	Location    string    `json:"location"`
	Gender      string    `json:"gender"`
	Contact     string    `json:"contact"`
	ThemeColor  string    `json:"theme_color"`
	AvatarURL   *string   `json:"avatar_url"`
	CoverURL    *string   `json:"cover_url"`
	DateJoined  time.Time `json:"date_joined"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
}

// ImageURL is the public route serving an account image.
func ImageURL(userID uint, slot string) string {
	return fmt.Sprintf("/api/v1/accounts/%d/%s", userID, slot)
}

func NewAccountView(u models.User) AccountView {
	v := AccountView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Name:        u.Name,
		Bio:         u.Bio,
		Location:    u.Location,
		Gender:      u.Gender,
		Contact:     u.Contact,
		ThemeColor:  u.ThemeColor,
		DateJoined:  u.CreatedAt,
		IsStaff:     u.IsStaff,
		IsSuperuser: u.IsSuperuser,
	}
	if u.AvatarKey != "" {
		s := ImageURL(u.ID, ImageAvatar)
		v.AvatarURL = &s
	}
	if u.CoverKey != "" {
		s := ImageURL(u.ID, ImageCover)
		v.CoverURL = &s
	}
	return v
}

// RegisterInput is the sign-up payload.
type RegisterInput struct {
	Email    string
	Password string
	Username string
	Name     string
}

// ProfilePatch holds the editable profile fields; nil means unchanged.
type ProfilePatch struct {
	Name       *string `json:"name" validate:"omitempty,max=150"`
	Bio        *string `json:"bio" validate:"omitempty,max=500"`
	Location   *string `json:"location" validate:"omitempty,max=120"`
	Gender     *string `json:"gender" validate:"omitempty,max=20"`
	Contact    *string `json:"contact" validate:"omitempty,max=120"`
	ThemeColor *string `json:"theme_color" validate:"omitempty,max=20"`
}

// AccountStore manages accounts and their profile images.
type AccountStore struct {
	db            *gorm.DB
	blobs         storage.Storage
	isAdminEmail  func(string) bool
	maxImageBytes int64
	validate      *validator.Validate
}

func NewAccountStore(db *gorm.DB, blobs storage.Storage, isAdminEmail func(string) bool, maxImageMB int) *AccountStore {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if isAdminEmail == nil {
		isAdminEmail = func(string) bool { return false }
	}
	return &AccountStore{
		db:            db,
		blobs:         blobs,
		isAdminEmail:  isAdminEmail,
		maxImageBytes: int64(maxImageMB) << 20,
		validate:      v,
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AccountStore) validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		msg := "is invalid"
		if fe.Tag() == "max" {
			msg = "at most " + fe.Param() + " characters"
		}
		return Validation(fe.Field(), msg)
	}
	return Internal(err, "validate input")
}

// MaxRequestBytes bounds a profile update carrying both images.
func (s *AccountStore) MaxRequestBytes() int64 {
	return 2*s.maxImageBytes + multipartOverhead
}

// Register creates an account. Without a username the email local part is
// used, with a numeric suffix when taken.
func (s *AccountStore) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	password := in.Password
	if email == "" || password == "" {
		return nil, Validation("email", "email and password are required")
	}
	if len(password) < utils.MinPasswordLength {
		return nil, Validation("password", fmt.Sprintf("at least %d characters", utils.MinPasswordLength))
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return nil, Validation("email", "invalid email address")
	}

	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return nil, Internal(err, "check email")
	}
	if n > 0 {
		return nil, Validation("email", "email already registered")
	}

	username := strings.TrimSpace(in.Username)
	if username != "" {
		if err := db.Model(&models.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
			return nil, Internal(err, "check username")
		}
		if n > 0 {
			return nil, Validation("username", "username already taken")
		}
	} else {
		var err error
		if username, err = s.freeUsername(ctx, email); err != nil {
			return nil, err
		}
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, Internal(err, "hash password")
	}
	admin := s.isAdminEmail(email)
	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		IsStaff:      admin,
		IsSuperuser:  admin,
	}
	if err := db.Create(&user).Error; err != nil {
		if isDuplicate(err) {
			return nil, Validation("email", "email or username already registered")
		}
		return nil, Internal(err, "create account")
	}
	return &user, nil
}

func (s *AccountStore) freeUsername(ctx context.Context, email string) (string, error) {
	base := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		base = email[:at]
	}
	candidate := base
	for i := 1; i <= maxUsernameTries; i++ {
		if i > 1 {
			candidate = fmt.Sprintf("%s%d", base, i)
		}
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", candidate).Count(&n).Error; err != nil {
			return "", Internal(err, "check username")
		}
		if n == 0 {
			return candidate, nil
		}
	}
	return "", Internal(nil, "no free username for %s", base)
}

// Authenticate checks credentials by email or, when email is empty, by
// username. role "admin" additionally requires staff or superuser.
func (s *AccountStore) Authenticate(ctx context.Context, email, username, password, role string) (*models.User, error) {
	email = NormalizeEmail(email)
	username = strings.TrimSpace(username)
	if password == "" || (email == "" && username == "") {
		return nil, Validation("email", "email/username and password are required")
	}

	q := s.db.WithContext(ctx)
	if email != "" {
		q = q.Where("email = ?", email)
	} else {
		q = q.Where("username = ?", username)
	}
	var user models.User
	if err := q.First(&user).Error; err != nil {
		if isNotFound(err) {
			return nil, Unauthenticated("invalid credentials")
		}
		return nil, Internal(err, "load account")
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, Unauthenticated("invalid credentials")
	}
	if strings.EqualFold(strings.TrimSpace(role), "admin") && !user.IsAdmin() {
		return nil, Forbidden("account has no admin permission")
	}
	return &user, nil
}

// Get loads an account by id.
func (s *AccountStore) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if isNotFound(err) {
			return nil, NotFound("account not found")
		}
		return nil, Internal(err, "load account %d", id)
	}
	return &user, nil
}

// UpdateProfile applies the non-nil fields of patch.
func (s *AccountStore) UpdateProfile(ctx context.Context, id uint, patch ProfilePatch) (*models.User, error) {
	if err := s.validate.Struct(patch); err != nil {
		return nil, s.validationError(err)
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			updates[col] = strings.TrimSpace(*v)
		}
	}
	set("name", patch.Name)
	set("bio", patch.Bio)
	set("location", patch.Location)
	set("gender", patch.Gender)
	set("contact", patch.Contact)
	set("theme_color", patch.ThemeColor)
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, Internal(err, "update profile %d", id)
	}
	return s.Get(ctx, id)
}

func imageColumns(slot string) (keyCol, typeCol string, err error) {
	switch slot {
	case ImageAvatar:
		return "avatar_key", "avatar_type", nil
	case ImageCover:
		return "cover_key", "cover_type", nil
	}
	return "", "", Validation("slot", "unknown image slot")
}

// SetImage stores an avatar or cover image and replaces the previous one.
func (s *AccountStore) SetImage(ctx context.Context, id uint, slot string, up Upload) (*models.User, error) {
	keyCol, typeCol, err := imageColumns(slot)
	if err != nil {
		return nil, err
	}
	ct := normalizeMediaType(up.ContentType)
	if !strings.HasPrefix(ct, "image/") {
		return nil, Validation(slot, "must be an image")
	}
	if up.Size > s.maxImageBytes {
		return nil, Validation(slot, fmt.Sprintf("image exceeds the %d MiB limit", s.maxImageBytes>>20))
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	old := user.AvatarKey
	if slot == ImageCover {
		old = user.CoverKey
	}

	key := storage.NewKey(fmt.Sprintf("%ss/%d", slot, id), up.Name)
	rc, err := up.Open()
	if err != nil {
		return nil, Internal(err, "open %s upload", slot)
	}
	defer rc.Close()
	if err := s.blobs.Put(ctx, key, rc, up.Size, ct); err != nil {
		return nil, Internal(err, "store %s", slot)
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{keyCol: key, typeCol: ct}).Error; err != nil {
		_ = s.blobs.Remove(context.WithoutCancel(ctx), key)
		return nil, Internal(err, "save %s", slot)
	}
	if old != "" {
		if err := s.blobs.Remove(ctx, old); err != nil {
			utils.Sugar.Warnf("remove old %s of account %d: %v", slot, id, err)
		}
	}
	return s.Get(ctx, id)
}

// OpenImage returns the content type and data of an account image.
func (s *AccountStore) OpenImage(ctx context.Context, id uint, slot string) (string, io.ReadCloser, error) {
	if _, _, err := imageColumns(slot); err != nil {
		return "", nil, NotFound("image not found")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return "", nil, err
	}
	key, ct := user.AvatarKey, user.AvatarType
	if slot == ImageCover {
		key, ct = user.CoverKey, user.CoverType
	}
	if key == "" {
		return "", nil, NotFound("image not found")
	}
	rc, err := s.blobs.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil, NotFound("image not found")
		}
		return "", nil, Internal(err, "open %s", slot)
	}
	return ct, rc, nil
}

// ListRecent returns the newest accounts, at most limit.
func (s *AccountStore) ListRecent(ctx context.Context, limit int) ([]models.User, error) {
	users := []models.User{}
	if err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&users).Error; err != nil {
		return nil, Internal(err, "list accounts")
	}
	return users, nil
}

// ResetPassword sets a new password for account id.
func (s *AccountStore) ResetPassword(ctx context.Context, id uint, password string) error {
	if len(password) < utils.MinPasswordLength {
		return Validation("password", fmt.Sprintf("at least %d characters", utils.MinPasswordLength))
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return Internal(err, "hash password")
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error; err != nil {
		return Internal(err, "reset password %d", id)
	}
	return nil
}
