package sellers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v84"

	"github.com/dropone-app/dropone-backend/pkg/config"
	"github.com/dropone-app/dropone-backend/pkg/db/models"
	"github.com/dropone-app/dropone-backend/pkg/enums"
	pkgerrors "github.com/dropone-app/dropone-backend/pkg/errors"
	"github.com/dropone-app/dropone-backend/pkg/logger"
)

type sellerRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Seller, error)
	UpdatePayoutFields(ctx context.Context, email string, updates map[string]any) (*models.Seller, error)
}

type connectClient interface {
	CreateExpressAccount(ctx context.Context, email string) (*stripe.Account, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
}

// Service exposes the seller balance and payout identity.
type Service interface {
	Balance(ctx context.Context, email string) (*BalanceView, error)
	SetPayPalEmail(ctx context.Context, email, paypalEmail string) (*BalanceView, error)
	StartStripeOnboarding(ctx context.Context, email string) (*OnboardingLink, error)
}

type ServiceParams struct {
	Repo       sellerRepository
	Connect    connectClient
	Payout     config.PayoutConfig
	RefreshURL string
	ReturnURL  string
	Logger     *logger.Logger
}

type service struct {
	repo       sellerRepository
	connect    connectClient
	currency   string
	minimum    int64
	refreshURL string
	returnURL  string
	validate   *validator.Validate
	logg       *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("sellers repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Payout.Currency))
	if currency == "" {
		currency = "EUR"
	}
	return &service{
		repo:       params.Repo,
		connect:    params.Connect,
		currency:   currency,
		minimum:    params.Payout.MinWithdrawalCents,
		refreshURL: params.RefreshURL,
		returnURL:  params.ReturnURL,
		validate:   validator.New(),
		logg:       logg,
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "seller identity missing")
	}
	return email, nil
}

func (s *service) Balance(ctx context.Context, email string) (*BalanceView, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	seller, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}
	return toBalanceView(email, seller, s.currency, s.minimum), nil
}

// SetPayPalEmail stores the PayPal payout address and makes PayPal the
// preferred method.
func (s *service) SetPayPalEmail(ctx context.Context, email, paypalEmail string) (*BalanceView, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	paypalEmail = strings.TrimSpace(paypalEmail)
	if err := s.validate.Var(paypalEmail, "required,email"); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid paypal email is required")
	}

	seller, err := s.repo.UpdatePayoutFields(ctx, email, map[string]any{
		"paypal_email":  paypalEmail,
		"payout_method": enums.PayoutMethodPayPal,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save paypal email")
	}
	s.logg.Info(s.logg.WithSellerEmail(ctx, email), "paypal payout email saved")
	return toBalanceView(email, seller, s.currency, s.minimum), nil
}

// StartStripeOnboarding creates the seller's Express account on first use and
// returns a fresh onboarding link for it.
func (s *service) StartStripeOnboarding(ctx context.Context, email string) (*OnboardingLink, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if s.connect == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stripe connect not configured")
	}
	ctx = s.logg.WithSellerEmail(ctx, email)

	seller, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load seller")
	}

	accountID := ""
	if seller != nil && seller.StripeAccountID != nil {
		accountID = *seller.StripeAccountID
	}
	if accountID == "" {
		account, err := s.connect.CreateExpressAccount(ctx, email)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe account")
		}
		accountID = account.ID
		if _, err := s.repo.UpdatePayoutFields(ctx, email, map[string]any{
			"stripe_account_id": accountID,
			"payout_method":     enums.PayoutMethodStripe,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save stripe account")
		}
		s.logg.Info(s.logg.WithField(ctx, "stripe_account_id", accountID), "stripe express account created")
	}

	url, err := s.connect.CreateOnboardingLink(ctx, accountID, s.refreshURL, s.returnURL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create onboarding link")
	}
	return &OnboardingLink{AccountID: accountID, URL: url}, nil
}
