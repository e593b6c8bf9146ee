package authpw

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"resumedeck/api/internal/store"
)

type fakeUserStore struct {
	byEmail map[string]store.User
	byID    map[string]store.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		byEmail: map[string]store.User{},
		byID:    map[string]store.User{},
	}
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	user, ok := f.byEmail[email]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeUserStore) CreateUser(_ context.Context, user store.User) error {
	f.byEmail[user.Email] = user
	f.byID[user.ID] = user
	return nil
}

func (f *fakeUserStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	user := f.byID[userID]
	user.PasswordHash = passwordHash
	f.byID[userID] = user
	f.byEmail[user.Email] = user
	return nil
}

func TestSignUpAndSignInRoundTrip(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	created, err := svc.SignUp(ctx, SignUpRequest{
		Email:       "Avery@Example.com",
		Password:    "correct-horse",
		DisplayName: "Avery",
	})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	if created.Email != "avery@example.com" {
		t.Fatalf("expected lowercased email, got %q", created.Email)
	}
	if created.PasswordHash == "correct-horse" {
		t.Fatal("password must not be stored in plain text")
	}

	user, err := svc.SignIn(ctx, SignInRequest{Email: "avery@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if user.ID != created.ID {
		t.Fatalf("expected user %s, got %s", created.ID, user.ID)
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.com", Password: "long-enough"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	_, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.com", Password: "long-enough"})
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	svc := NewService(newFakeUserStore())
	if _, err := svc.SignUp(context.Background(), SignUpRequest{Email: "a@b.com", Password: "short"}); err == nil {
		t.Fatal("expected error for short password")
	}
}

func TestSignInRejectsWrongPassword(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.com", Password: "long-enough"}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}
	_, err := svc.SignIn(ctx, SignInRequest{Email: "a@b.com", Password: "wrong-password"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordRequiresCurrent(t *testing.T) {
	svc := NewService(newFakeUserStore())
	ctx := context.Background()

	user, err := svc.SignUp(ctx, SignUpRequest{Email: "a@b.com", Password: "long-enough"})
	if err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong", "another-long-one"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "long-enough", "another-long-one"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, SignInRequest{Email: "a@b.com", Password: "another-long-one"}); err != nil {
		t.Fatalf("SignIn() with new password error = %v", err)
	}
}
