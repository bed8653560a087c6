package store

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cppla/teamfeed/models"
	"github.com/cppla/teamfeed/utils"
)

func newAccountStore(t *testing.T) (*AccountStore, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	isAdmin := func(email string) bool { return email == "root@example.com" }
	return NewAccountStore(db, newTestBlobs(t), isAdmin, 1), db
}

func TestRegister(t *testing.T) {
	accounts, _ := newAccountStore(t)
	ctx := context.Background()

	u, err := accounts.Register(ctx, RegisterInput{Email: "  Alice@Example.COM ", Password: "secret1", Name: " Alice "})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "Alice", u.Name)
	assert.NotEqual(t, "secret1", u.PasswordHash)
	assert.True(t, utils.CheckPassword(u.PasswordHash, "secret1"))
	assert.False(t, u.IsAdmin())

	// same local part on another domain gets a suffix
	u2, err := accounts.Register(ctx, RegisterInput{Email: "alice@other.org", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice2", u2.Username)
	u3, err := accounts.Register(ctx, RegisterInput{Email: "alice@third.org", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "alice3", u3.Username)

	_, err = accounts.Register(ctx, RegisterInput{Email: "ALICE@example.com", Password: "secret1"})
	se := requireKind(t, err, KindValidation)
	assert.Equal(t, "email", se.Field)

	_, err = accounts.Register(ctx, RegisterInput{Email: "new@example.com", Password: "secret1", Username: "alice2"})
	assert.Equal(t, "username", requireKind(t, err, KindValidation).Field)

	admin, err := accounts.Register(ctx, RegisterInput{Email: "root@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.True(t, admin.IsStaff)
	assert.True(t, admin.IsSuperuser)
}

func TestRegisterValidation(t *testing.T) {
	accounts, _ := newAccountStore(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"missing email", RegisterInput{Password: "secret1"}, "email"},
		{"missing password", RegisterInput{Email: "a@example.com"}, "email"},
		{"short password", RegisterInput{Email: "a@example.com", Password: "12345"}, "password"},
		{"bad email", RegisterInput{Email: "not-an-email", Password: "secret1"}, "email"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := accounts.Register(ctx, tc.in)
			assert.Equal(t, tc.field, requireKind(t, err, KindValidation).Field)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	accounts, _ := newAccountStore(t)
	ctx := context.Background()

	_, err := accounts.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "hunter22", Username: "bobby"})
	require.NoError(t, err)
	_, err = accounts.Register(ctx, RegisterInput{Email: "root@example.com", Password: "hunter22"})
	require.NoError(t, err)

	u, err := accounts.Authenticate(ctx, " BOB@example.com", "", "hunter22", "")
	require.NoError(t, err)
	assert.Equal(t, "bobby", u.Username)

	u, err = accounts.Authenticate(ctx, "", "bobby", "hunter22", "")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", u.Email)

	_, err = accounts.Authenticate(ctx, "bob@example.com", "", "wrong-pass", "")
	requireKind(t, err, KindUnauthenticated)
	_, err = accounts.Authenticate(ctx, "ghost@example.com", "", "hunter22", "")
	requireKind(t, err, KindUnauthenticated)
	_, err = accounts.Authenticate(ctx, "", "", "hunter22", "")
	requireKind(t, err, KindValidation)

	_, err = accounts.Authenticate(ctx, "bob@example.com", "", "hunter22", "admin")
	requireKind(t, err, KindPermissionDenied)
	_, err = accounts.Authenticate(ctx, "root@example.com", "", "hunter22", "admin")
	require.NoError(t, err)
}

func TestPasswordKeptExactly(t *testing.T) {
	accounts, db := newAccountStore(t)
	ctx := context.Background()

	u, err := accounts.Register(ctx, RegisterInput{Email: "pad@example.com", Password: "  hunter22  "})
	require.NoError(t, err)

	_, err = accounts.Authenticate(ctx, "pad@example.com", "", "hunter22", "")
	requireKind(t, err, KindUnauthenticated)
	_, err = accounts.Authenticate(ctx, "pad@example.com", "", "  hunter22  ", "")
	require.NoError(t, err)

	require.NoError(t, accounts.ResetPassword(ctx, u.ID, " new pass "))
	var stored models.User
	require.NoError(t, db.First(&stored, u.ID).Error)
	assert.True(t, utils.CheckPassword(stored.PasswordHash, " new pass "))
	assert.False(t, utils.CheckPassword(stored.PasswordHash, "new pass"))
}

func TestUpdateProfile(t *testing.T) {
	accounts, db := newAccountStore(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")

	u, err := accounts.UpdateProfile(ctx, alice.ID, ProfilePatch{Bio: strPtr(" hello "), ThemeColor: strPtr("#ff8800")})
	require.NoError(t, err)
	assert.Equal(t, "hello", u.Bio)
	assert.Equal(t, "#ff8800", u.ThemeColor)

	_, err = accounts.UpdateProfile(ctx, alice.ID, ProfilePatch{Name: strPtr(strings.Repeat("n", 151))})
	se := requireKind(t, err, KindValidation)
	assert.Equal(t, "name", se.Field)
	assert.Equal(t, "at most 150 characters", se.Message)

	_, err = accounts.UpdateProfile(ctx, alice.ID, ProfilePatch{Gender: strPtr(strings.Repeat("g", 21))})
	assert.Equal(t, "gender", requireKind(t, err, KindValidation).Field)

	// untouched fields survive
	u, err = accounts.UpdateProfile(ctx, alice.ID, ProfilePatch{Location: strPtr("Berlin")})
	require.NoError(t, err)
	assert.Equal(t, "hello", u.Bio)
	assert.Equal(t, "Berlin", u.Location)

	_, err = accounts.UpdateProfile(ctx, alice.ID+100, ProfilePatch{Bio: strPtr("x")})
	requireKind(t, err, KindNotFound)
}

func TestAccountImages(t *testing.T) {
	accounts, db := newAccountStore(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")

	assert.Nil(t, NewAccountView(alice).AvatarURL)
	_, _, err := accounts.OpenImage(ctx, alice.ID, ImageAvatar)
	requireKind(t, err, KindNotFound)

	_, err = accounts.SetImage(ctx, alice.ID, ImageAvatar, memUpload("me.txt", "text/plain", "hi"))
	assert.Equal(t, ImageAvatar, requireKind(t, err, KindValidation).Field)
	big := memUpload("big.png", "image/png", strings.Repeat("x", 1<<20+1))
	_, err = accounts.SetImage(ctx, alice.ID, ImageCover, big)
	requireKind(t, err, KindValidation)

	u, err := accounts.SetImage(ctx, alice.ID, ImageAvatar, memUpload("me.PNG", "image/png", "v1"))
	require.NoError(t, err)
	oldKey := u.AvatarKey
	assert.True(t, strings.HasPrefix(oldKey, "avatars/"), oldKey)
	view := NewAccountView(*u)
	require.NotNil(t, view.AvatarURL)
	assert.Equal(t, ImageURL(alice.ID, ImageAvatar), *view.AvatarURL)
	assert.Nil(t, view.CoverURL)

	u, err = accounts.SetImage(ctx, alice.ID, ImageAvatar, memUpload("me2.jpg", "image/jpeg", "v2"))
	require.NoError(t, err)
	assert.NotEqual(t, oldKey, u.AvatarKey)
	_, err = accounts.blobs.Open(ctx, oldKey)
	assert.Error(t, err, "replaced avatar should be removed")

	ct, rc, err := accounts.OpenImage(ctx, alice.ID, ImageAvatar)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)
	assert.Equal(t, "v2", string(body))

	_, _, err = accounts.OpenImage(ctx, alice.ID, "banner")
	requireKind(t, err, KindNotFound)
}

func TestListRecentAndResetPassword(t *testing.T) {
	accounts, db := newAccountStore(t)
	ctx := context.Background()
	a := createUser(t, db, "a")
	b := createUser(t, db, "b")
	c := createUser(t, db, "c")

	users, err := accounts.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, c.ID, users[0].ID)
	assert.Equal(t, b.ID, users[1].ID)

	requireKind(t, accounts.ResetPassword(ctx, a.ID, "123"), KindValidation)
	requireKind(t, accounts.ResetPassword(ctx, a.ID+100, "longenough"), KindNotFound)
	require.NoError(t, accounts.ResetPassword(ctx, a.ID, "longenough"))

	var stored models.User
	require.NoError(t, db.First(&stored, a.ID).Error)
	assert.True(t, utils.CheckPassword(stored.PasswordHash, "longenough"))
}
