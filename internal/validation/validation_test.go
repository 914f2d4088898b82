package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/heatshop-checkout/internal/money"
)

func validOrder() CreateOrderRequest {
	return CreateOrderRequest{
		Items: []CartItemRequest{
			{ProductID: "5b0c3f4e-7a8d-4c1e-9f2a-0d6e8b1c2a31", Quantity: 2, UnitPrice: money.New(1200)},
		},
		ShippingAddress: AddressRequest{Street: "12 rue Didouche Mourad", City: "Alger", RegionCode: "16", Country: "DZ"},
		PaymentMethod:   "CASH_ON_DELIVERY",
	}
}

func TestCreateOrderRequest_Valid(t *testing.T) {
	v := New()
	if err := v.Struct(validOrder()); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCreateOrderRequest_FieldErrors(t *testing.T) {
	v := New()

	req := validOrder()
	req.Items = append(req.Items, CartItemRequest{ProductID: "not-a-uuid", Quantity: 0, UnitPrice: money.New(-1)})
	req.ShippingAddress.RegionCode = "1A"

	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	fields := FieldErrors(err)
	for _, k := range []string{"items[1].product_id", "items[1].quantity", "items[1].unit_price", "shipping_address.region_code"} {
		if _, ok := fields[k]; !ok {
			t.Errorf("missing field error %q in %v", k, fields)
		}
	}
}

func TestCreateOrderRequest_MissingFields(t *testing.T) {
	v := New()
	if err := v.Struct(CreateOrderRequest{}); err == nil {
		t.Fatal("expected validation errors for missing required fields, got nil")
	}
}

func TestGuestOrderRequest_RequiresContact(t *testing.T) {
	v := New()

	req := GuestOrderRequest{CreateOrderRequest: validOrder()}
	fields := FieldErrors(v.Struct(req))
	for _, k := range []string{"contact.name", "contact.email", "contact.phone"} {
		if fields[k] != "is required" {
			t.Errorf("expected %q to be required, got %v", k, fields)
		}
	}

	req.Contact = ContactRequest{Name: "Amina B.", Email: "amina@example.dz", Phone: "0555 12 34 56"}
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid guest order, got %v", err)
	}
}

func TestValidPhone(t *testing.T) {
	valid := []string{"0555123456", "+213661234567", "0770-12-34-56", "021234567", "+21338123456"}
	invalid := []string{"", "0855123456", "055512345", "+33612345678", "05551234567", "0123456789"}
	for _, p := range valid {
		if !ValidPhone(p) {
			t.Errorf("%q should be valid", p)
		}
	}
	for _, p := range invalid {
		if ValidPhone(p) {
			t.Errorf("%q should be invalid", p)
		}
	}
}

func TestBindAndValidate_WritesBadRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[]}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req CreateOrderRequest
	if err := BindAndValidate(c, &req, New()); err == nil {
		t.Fatal("expected error")
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"error":"validation"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestMustRegister_PanicsOnBadTag(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for an empty tag")
		}
	}()
	mustRegister(New(), "", func(validatorv10.FieldLevel) bool { return true })
}
