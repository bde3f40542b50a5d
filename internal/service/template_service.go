package service

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"reachpoint/internal/models"
)

// Segment spending thresholds, inclusive at each boundary
const (
	segmentVIPThreshold     = 50000
	segmentPremiumThreshold = 20000
	segmentRegularThreshold = 5000
)

// TemplateService handles message template rendering
type TemplateService struct {
	printer *message.Printer
}

// NewTemplateService creates a new template service
func NewTemplateService() *TemplateService {
	return &TemplateService{
		printer: message.NewPrinter(language.English),
	}
}

// Render renders a template with customer data.
// Supported placeholders: {name}, {firstName}, {email}, {totalSpending},
// {visits}, {segment}. Unknown placeholders are left as-is.
func (s *TemplateService) Render(template string, customer *models.Customer) (string, error) {
	if template == "" {
		return "", fmt.Errorf("template cannot be empty")
	}
	if customer == nil {
		return "", fmt.Errorf("customer cannot be nil")
	}

	rendered := template
	rendered = strings.ReplaceAll(rendered, "{name}", customer.Name)
	rendered = strings.ReplaceAll(rendered, "{firstName}", customer.FirstName())
	rendered = strings.ReplaceAll(rendered, "{email}", customer.Email)
	rendered = strings.ReplaceAll(rendered, "{totalSpending}", s.FormatCurrency(customer.TotalSpending))
	rendered = strings.ReplaceAll(rendered, "{visits}", strconv.Itoa(customer.VisitCount))
	rendered = strings.ReplaceAll(rendered, "{segment}", DeriveSegment(customer.TotalSpending))

	return rendered, nil
}

// FormatCurrency renders a spending amount as a localized currency string
// with digit grouping, e.g. ₹1,500.00
func (s *TemplateService) FormatCurrency(amount float64) string {
	return s.printer.Sprintf("₹%.2f", amount)
}

// DeriveSegment derives the customer tier live from spending. Thresholds
// are inclusive; anything below the smallest threshold is the lowest tier.
func DeriveSegment(spending float64) string {
	switch {
	case spending >= segmentVIPThreshold:
		return "VIP"
	case spending >= segmentPremiumThreshold:
		return "Premium"
	case spending >= segmentRegularThreshold:
		return "Regular"
	default:
		return "New"
	}
}

// ValidateTemplate checks if template has valid syntax
func (s *TemplateService) ValidateTemplate(template string) error {
	if template == "" {
		return fmt.Errorf("template cannot be empty")
	}

	openCount := strings.Count(template, "{")
	closeCount := strings.Count(template, "}")
	if openCount != closeCount {
		return fmt.Errorf("template has unbalanced braces: %d open, %d close", openCount, closeCount)
	}

	return nil
}
