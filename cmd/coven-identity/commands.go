// ABOUTME: Subcommands that drive the auth flows from the command line
// ABOUTME: Results go to stdout, diagnostics to stderr through the logger

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-identity/internal/auth"
	"github.com/2389/coven-identity/internal/otp"
	"github.com/2389/coven-identity/internal/store"
)

var (
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	yellow = color.New(color.FgYellow)
	gray   = color.New(color.FgHiBlack)
)

// withApp parses flags, builds the app and runs fn with it.
func withApp(ctx context.Context, fs *flagSet, args []string, requiredFlags []string, fn func(*app) error) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := fs.required(requiredFlags...); err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func runMigrate(ctx context.Context, args []string) error {
	fs := newFlagSet()
	return withApp(ctx, fs, args, nil, func(a *app) error {
		green.Printf("  ✓ Database ready: %s\n", a.cfg.Database.Path)
		return nil
	})
}

func runSignup(ctx context.Context, args []string) error {
	fs := newFlagSet()
	name := fs.String("name")
	email := fs.String("email")
	phone := fs.String("phone")
	password := fs.String("password")

	return withApp(ctx, fs, args, []string{"name", "email", "phone"}, func(a *app) error {
		pw, err := readPassword(*password)
		if err != nil {
			return err
		}
		err = a.auth.Signup(ctx, auth.SignupRequest{
			Name:     *name,
			Email:    *email,
			Phone:    *phone,
			Password: pw,
		})
		if err != nil {
			return err
		}
		green.Printf("  ✓ Account created for %s\n", store.NormalizeEmail(*email))
		fmt.Printf("  A %s code was sent; it expires in %s.\n", otp.PurposeSignup, a.otp.TTL())
		yellow.Printf("    coven-identity verify --email %s --code <code>\n", store.NormalizeEmail(*email))
		return nil
	})
}

func runResend(ctx context.Context, args []string) error {
	fs := newFlagSet()
	email := fs.String("email")

	return withApp(ctx, fs, args, []string{"email"}, func(a *app) error {
		if err := a.auth.ResendVerification(ctx, *email); err != nil {
			return err
		}
		green.Printf("  ✓ New signup code sent to %s\n", store.NormalizeEmail(*email))
		return nil
	})
}

func runVerify(ctx context.Context, args []string) error {
	fs := newFlagSet()
	email := fs.String("email")
	code := fs.String("code")

	return withApp(ctx, fs, args, []string{"email", "code"}, func(a *app) error {
		res, err := a.auth.VerifyOTP(ctx, *email, *code)
		if err != nil {
			return err
		}
		switch res.Purpose {
		case otp.PurposeSignup:
			green.Printf("  ✓ Email verified: %s\n", store.NormalizeEmail(*email))
		case otp.PurposeForgotPassword:
			green.Println("  ✓ Code accepted. Reset token:")
			fmt.Println(res.ResetToken)
			yellow.Printf("    coven-identity reset --email %s --token <token>\n", store.NormalizeEmail(*email))
		default:
			return fmt.Errorf("unexpected purpose %s", res.Purpose)
		}
		return nil
	})
}

func runForgot(ctx context.Context, args []string) error {
	fs := newFlagSet()
	email := fs.String("email")

	return withApp(ctx, fs, args, []string{"email"}, func(a *app) error {
		if err := a.auth.ForgotPassword(ctx, *email); err != nil {
			return err
		}
		green.Printf("  ✓ Password reset code sent to %s\n", store.NormalizeEmail(*email))
		return nil
	})
}

func runReset(ctx context.Context, args []string) error {
	fs := newFlagSet()
	email := fs.String("email")
	resetToken := fs.String("token")
	password := fs.String("password")

	return withApp(ctx, fs, args, []string{"email", "token"}, func(a *app) error {
		pw, err := readPassword(*password)
		if err != nil {
			return err
		}
		err = a.auth.ResetPassword(ctx, auth.ResetPasswordRequest{
			Email:      *email,
			Password:   pw,
			ResetToken: *resetToken,
		})
		if err != nil {
			return err
		}
		green.Println("  ✓ Password updated")
		return nil
	})
}

func runLogin(ctx context.Context, args []string) error {
	fs := newFlagSet()
	email := fs.String("email")
	password := fs.String("password")
	remember := fs.Bool("remember")

	return withApp(ctx, fs, args, []string{"email"}, func(a *app) error {
		pw, err := readPassword(*password)
		if err != nil {
			return err
		}
		pair, err := a.auth.Login(ctx, auth.LoginRequest{
			Email:      *email,
			Password:   pw,
			RememberMe: *remember,
		})
		if err != nil {
			return err
		}
		printPair(pair, a.tokens.AccessTTL())
		return nil
	})
}

func runGoogle(ctx context.Context, args []string) error {
	fs := newFlagSet()
	idToken := fs.String("id-token")

	return withApp(ctx, fs, args, []string{"id-token"}, func(a *app) error {
		if a.cfg.Google.ClientID == "" {
			return fmt.Errorf("google.client_id is not configured")
		}
		pair, err := a.auth.SocialLogin(ctx, *idToken)
		if err != nil {
			return err
		}
		printPair(pair, a.tokens.AccessTTL())
		return nil
	})
}

func runRefresh(ctx context.Context, args []string) error {
	fs := newFlagSet()
	refreshToken := fs.String("token")

	return withApp(ctx, fs, args, []string{"token"}, func(a *app) error {
		access, err := a.auth.Refresh(ctx, "Bearer "+*refreshToken)
		if err != nil {
			return err
		}
		fmt.Println(access)
		return nil
	})
}

func runWhoami(ctx context.Context, args []string) error {
	fs := newFlagSet()
	accessToken := fs.String("token")

	return withApp(ctx, fs, args, []string{"token"}, func(a *app) error {
		id, err := a.auth.Authenticate(ctx, *accessToken)
		if err != nil {
			return err
		}
		cyan.Println("  Identity")
		cyan.Println("  --------")
		fmt.Printf("  Email: %s\n", id.Email)
		fmt.Printf("  Role:  %s\n", id.Role)
		return nil
	})
}

func runPurge(ctx context.Context, args []string) error {
	fs := newFlagSet()
	return withApp(ctx, fs, args, nil, func(a *app) error {
		start := time.Now()
		n, err := a.otp.PurgeExpired(ctx)
		if err != nil {
			return err
		}
		spent, err := a.store.DeleteExpiredTokens(ctx, time.Now())
		if err != nil {
			return err
		}
		keep := max(a.cfg.OTP.Cooldown, a.cfg.OTP.Window)
		limits, err := a.store.DeleteStaleRateStates(ctx, time.Now().Add(-keep))
		if err != nil {
			return err
		}
		green.Printf("  ✓ Purged %d code(s), %d spent token(s) and %d limiter record(s)", n, spent, limits)
		gray.Printf(" in %s\n", time.Since(start).Round(time.Millisecond))
		return nil
	})
}

func runAudit(ctx context.Context, args []string) error {
	fs := newFlagSet()
	email := fs.String("email")
	action := fs.String("action")
	limit := fs.String("limit")

	return withApp(ctx, fs, args, nil, func(a *app) error {
		var f store.AuditFilter
		if *email != "" {
			f.Email = email
		}
		if *action != "" {
			act := store.AuditAction(*action)
			if !act.Valid() {
				return fmt.Errorf("unknown action %q", *action)
			}
			f.Action = &act
		}
		if *limit != "" {
			n, err := strconv.Atoi(*limit)
			if err != nil {
				return fmt.Errorf("--limit: %w", err)
			}
			f.Limit = n
		}

		entries, err := a.store.ListAuditLog(ctx, f)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			gray.Println("  No audit entries")
			return nil
		}
		for _, e := range entries {
			gray.Printf("  %s ", e.Timestamp.Local().Format(time.DateTime))
			cyan.Printf("%-26s", e.Action)
			fmt.Printf(" %s", e.Email)
			if len(e.Detail) > 0 {
				gray.Printf(" %v", e.Detail)
			}
			fmt.Println()
		}
		return nil
	})
}

func printPair(pair auth.TokenPair, accessTTL time.Duration) {
	cyan.Printf("  Access token (expires in %s):\n", accessTTL)
	fmt.Println(pair.AccessToken)
	cyan.Println("  Refresh token:")
	fmt.Println(pair.RefreshToken)
}
