package http

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusauth/internal/platform/events"
	"campusauth/internal/platform/vision"
)

func TestProtectedRoutesNeedBearer(t *testing.T) {
	e := newEnv(t)
	for _, r := range []struct{ method, path string }{
		{fiber.MethodGet, "/me"},
		{fiber.MethodPatch, "/me"},
		{fiber.MethodPost, "/verify-name"},
		{fiber.MethodPost, "/upload-id"},
		{fiber.MethodPost, "/verify-id"},
		{fiber.MethodGet, "/user/devices"},
		{fiber.MethodDelete, "/session"},
	} {
		res := e.do(t, r.method, r.path, map[string]any{}, "")
		assert.Equal(t, fiber.StatusUnauthorized, res.status, r.path)
		assert.Equal(t, "UNAUTHORIZED", res.str("error_code"), r.path)
	}

	res := e.do(t, fiber.MethodGet, "/me", nil, "not-a-jwt")
	assert.Equal(t, fiber.StatusUnauthorized, res.status)
}

func TestVerifyNameAutoMatch(t *testing.T) {
	e := newEnv(t)
	access, _ := e.signIn(t, "john.smith@yorku.ca")

	res := e.do(t, fiber.MethodPost, "/verify-name", map[string]any{"name": "  john   smith "}, access)
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	assert.Equal(t, true, res.body["auto_verified"])
	assert.Equal(t, true, res.body["name_verified"])
	assert.Equal(t, false, res.body["requires_id_upload"])
	assert.Equal(t, "Full name verified from email", res.str("message"))
	assert.Contains(t, e.events.types(), events.NameVerified)

	res = e.do(t, fiber.MethodPost, "/verify-name", map[string]any{"name": "John Smith"}, access)
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "Name already verified and cannot be changed", res.str("detail"))
}

func TestVerifyNameNeedsUpload(t *testing.T) {
	e := newEnv(t)
	access, _ := e.signIn(t, "jdoe99@my.yorku.ca")

	res := e.do(t, fiber.MethodPost, "/verify-name", map[string]any{"name": "Priya Patel"}, access)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, true, res.body["requires_id_upload"])
	assert.Equal(t, false, res.body["name_verified"])
	assert.Equal(t, "First name not found in email. ID verification required.", res.str("message"))

	res = e.do(t, fiber.MethodGet, "/me", nil, access)
	assert.Equal(t, false, res.body["name_verified"])
}

func TestVerifyNameRejectsBadCharacters(t *testing.T) {
	e := newEnv(t)
	access, _ := e.signIn(t, "a@yorku.ca")

	res := e.do(t, fiber.MethodPost, "/verify-name", map[string]any{"name": "R2-D2!"}, access)
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "INVALID_NAME", res.str("error_code"))

	res = e.do(t, fiber.MethodPost, "/verify-name", map[string]any{}, access)
	assert.Equal(t, fiber.StatusUnprocessableEntity, res.status)
}

// uploadID walks a user through upload-id and drops an image at the
// returned key.
func uploadID(t *testing.T, e *env, access string) string {
	t.Helper()
	res := e.do(t, fiber.MethodPost, "/upload-id", map[string]any{"filename": "card.png", "content_type": "image/png"}, access)
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	assert.EqualValues(t, 300, res.body["expires_in"])
	assert.True(t, strings.HasPrefix(res.str("upload_url"), "https://bucket.example/"))
	key := res.str("file_key")
	e.store.put(key, []byte("png-bytes"))
	return key
}

func TestUploadIDRejectsNonImages(t *testing.T) {
	e := newEnv(t)
	access, _ := e.signIn(t, "jdoe99@my.yorku.ca")

	for _, ct := range []string{"application/pdf", "text/plain", "image/gif", "image/svg+xml"} {
		res := e.do(t, fiber.MethodPost, "/upload-id", map[string]any{"filename": "card", "content_type": ct}, access)
		assert.Equal(t, fiber.StatusBadRequest, res.status, ct)
		assert.Equal(t, "INVALID_CONTENT_TYPE", res.str("error_code"), ct)
	}
}

func TestUploadIDWithoutStorage(t *testing.T) {
	e := newEnv(t, func(o *Options) { o.Storage = nil })
	access, _ := e.signIn(t, "jdoe99@my.yorku.ca")

	res := e.do(t, fiber.MethodPost, "/upload-id", map[string]any{"filename": "card.png", "content_type": "image/png"}, access)
	assert.Equal(t, fiber.StatusServiceUnavailable, res.status)
}

func TestVerifyIDMatchDeletesImage(t *testing.T) {
	e := newEnv(t)
	e.reader.name = "Priya Patel"
	access, _ := e.signIn(t, "jdoe99@my.yorku.ca")
	key := uploadID(t, e, access)

	res := e.do(t, fiber.MethodPost, "/verify-id", map[string]any{"file_key": key, "name": "priya p"}, access)
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	assert.Equal(t, true, res.body["success"])
	assert.Equal(t, "Priya Patel", res.str("extracted_name"))
	assert.Equal(t, "Name verified successfully", res.str("message"))
	assert.Equal(t, []string{key}, e.store.deleted)

	me := e.do(t, fiber.MethodGet, "/me", nil, access)
	assert.Equal(t, "Priya Patel", me.str("name"))
	assert.Equal(t, true, me.body["name_verified"])
}

func TestVerifyIDMismatchKeepsImage(t *testing.T) {
	e := newEnv(t)
	e.reader.name = "Jane Smith"
	access, _ := e.signIn(t, "jdoe99@my.yorku.ca")
	key := uploadID(t, e, access)

	res := e.do(t, fiber.MethodPost, "/verify-id", map[string]any{"file_key": key, "name": "Priya Patel"}, access)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, false, res.body["success"])
	assert.Equal(t, "Name on ID (Jane Smith) doesn't match the name you entered", res.str("message"))
	assert.Empty(t, e.store.deleted)

	me := e.do(t, fiber.MethodGet, "/me", nil, access)
	assert.Equal(t, false, me.body["name_verified"])
}

func TestVerifyIDUnreadable(t *testing.T) {
	for name, err := range map[string]error{
		"no name":     vision.ErrNoName,
		"model error": errors.New("quota exceeded"),
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			e.reader.err = err
			access, _ := e.signIn(t, "jdoe99@my.yorku.ca")
			key := uploadID(t, e, access)

			res := e.do(t, fiber.MethodPost, "/verify-id", map[string]any{"file_key": key}, access)
			require.Equal(t, fiber.StatusOK, res.status)
			assert.Equal(t, false, res.body["success"])
			assert.Equal(t, "Could not read a name from the ID. Please upload a clearer photo.", res.str("message"))
		})
	}
}

func TestVerifyIDForeignKey(t *testing.T) {
	e := newEnv(t)
	e.reader.name = "Priya Patel"
	owner, _ := e.signIn(t, "jdoe99@my.yorku.ca")
	key := uploadID(t, e, owner)

	other, _ := e.signIn(t, "x@yorku.ca")
	res := e.do(t, fiber.MethodPost, "/verify-id", map[string]any{"file_key": key}, other)
	assert.Equal(t, fiber.StatusForbidden, res.status)

	res = e.do(t, fiber.MethodPost, "/verify-id", map[string]any{"file_key": "student-ids/../" + key}, other)
	assert.Equal(t, fiber.StatusForbidden, res.status)
}

func TestVerifyIDMissingObject(t *testing.T) {
	e := newEnv(t)
	access, _ := e.signIn(t, "jdoe99@my.yorku.ca")
	me := e.do(t, fiber.MethodGet, "/me", nil, access)

	res := e.do(t, fiber.MethodPost, "/verify-id", map[string]any{"file_key": "student-ids/" + me.str("id") + "/gone.png"}, access)
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "FILE_UNAVAILABLE", res.str("error_code"))
}

func TestProfileUpdate(t *testing.T) {
	e := newEnv(t)
	access, _ := e.signIn(t, "a@yorku.ca")

	res := e.do(t, fiber.MethodPatch, "/me", map[string]any{
		"program":     "Computer Science",
		"campus_days": []string{"Mon", "Wed"},
		"interests":   []string{"chess"},
	}, access)
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	assert.Equal(t, "Computer Science", res.str("program"))
	assert.Equal(t, []any{"Mon", "Wed"}, res.body["campus_days"])

	res = e.do(t, fiber.MethodPatch, "/me", map[string]any{"bio": "hi"}, access)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, "hi", res.str("bio"))
	assert.Equal(t, "Computer Science", res.str("program"), "absent fields are kept")

	me := e.do(t, fiber.MethodGet, "/me", nil, access)
	assert.Equal(t, "a@yorku.ca", me.str("email"))
	assert.Equal(t, true, me.body["email_verified"])
}

func TestProfileUpdateValidation(t *testing.T) {
	e := newEnv(t)
	access, _ := e.signIn(t, "a@yorku.ca")

	for name, body := range map[string]map[string]any{
		"long bio":   {"bio": strings.Repeat("x", 501)},
		"bad day":    {"campus_days": []string{"Monday"}},
		"bad avatar": {"avatar_url": "not a url"},
		"too many":   {"interests": []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}},
	} {
		res := e.do(t, fiber.MethodPatch, "/me", body, access)
		assert.Equal(t, fiber.StatusUnprocessableEntity, res.status, name)
	}
}

func TestPublicProfileHidesEmail(t *testing.T) {
	e := newEnv(t)
	access, _ := e.signIn(t, "john.smith@yorku.ca")
	id := e.do(t, fiber.MethodGet, "/me", nil, access).str("id")

	res := e.do(t, fiber.MethodGet, "/users/"+id, nil, "")
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, "John Smith", res.str("name"))
	_, hasEmail := res.body["email"]
	assert.False(t, hasEmail)

	res = e.do(t, fiber.MethodGet, "/users/nobody", nil, "")
	assert.Equal(t, fiber.StatusNotFound, res.status)
}

func TestDevicesListAndRevoke(t *testing.T) {
	e := newEnv(t)
	first, _ := e.signIn(t, "a@yorku.ca")
	second, _ := e.signIn(t, "a@yorku.ca")

	res := e.do(t, fiber.MethodGet, "/user/devices", nil, second)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.EqualValues(t, 2, res.body["total"])
	devices := res.body["devices"].([]any)
	require.Len(t, devices, 2)

	_, firstSID, err := e.jwt.ParseAccess(first)
	require.NoError(t, err)
	var current int
	for _, d := range devices {
		if d.(map[string]any)["current"] == true {
			current++
		}
	}
	assert.Equal(t, 1, current)

	res = e.do(t, fiber.MethodDelete, "/user/devices/"+firstSID, nil, second)
	assert.Equal(t, fiber.StatusOK, res.status)
	res = e.do(t, fiber.MethodDelete, "/user/devices/unknown", nil, second)
	assert.Equal(t, fiber.StatusNotFound, res.status)

	other, _ := e.signIn(t, "b@yorku.ca")
	_, secondSID, _ := e.jwt.ParseAccess(second)
	res = e.do(t, fiber.MethodDelete, "/user/devices/"+secondSID, nil, other)
	assert.Equal(t, fiber.StatusNotFound, res.status, "sessions of other users are invisible")
}

func TestSignOut(t *testing.T) {
	e := newEnv(t)
	access, refresh := e.signIn(t, "a@yorku.ca")
	_, otherRefresh := e.signIn(t, "a@yorku.ca")

	res := e.do(t, fiber.MethodDelete, "/session", nil, access)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, fiber.StatusUnauthorized, e.post(t, "/refresh", map[string]any{"refresh_token": refresh}).status)
	assert.Equal(t, fiber.StatusOK, e.post(t, "/refresh", map[string]any{"refresh_token": otherRefresh}).status)

	res = e.do(t, fiber.MethodDelete, "/session?all=true", nil, access)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.EqualValues(t, 1, res.body["sessions_terminated"])

	u, err := e.repos.Users.GetByEmail(context.Background(), "a@yorku.ca")
	require.NoError(t, err)
	_, total, err := e.repos.Sessions.ListByUser(context.Background(), u.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}
