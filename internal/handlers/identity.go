package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/heatshop-checkout/internal/apperr"
	"github.com/imrishuroy/heatshop-checkout/internal/cart"
)

const (
	customerIDKey   = "customer_id"
	guestSessionKey = "guest_session"
)

// requireCustomer trusts the identity header set by the upstream authorizer.
func (a *api) requireCustomer(c *gin.Context) {
	id := strings.TrimSpace(c.GetHeader(a.identityHeader))
	if id == "" {
		a.fail(c, apperr.New(apperr.KindUnauthenticated, "authentication required"))
		c.Abort()
		return
	}
	c.Set(customerIDKey, id)
	c.Next()
}

func requireGuestSession(c *gin.Context) {
	id := strings.TrimSpace(c.GetHeader(GuestSessionHeader))
	if id == "" || len(id) > 128 {
		writeError(c, apperr.InvalidField("session", GuestSessionHeader+" header is required"))
		c.Abort()
		return
	}
	c.Set(guestSessionKey, id)
	c.Next()
}

func customerID(c *gin.Context) string { return c.GetString(customerIDKey) }

func customerOwner(c *gin.Context) cart.Owner { return cart.Customer(customerID(c)) }

func guestOwner(c *gin.Context) cart.Owner { return cart.Guest(c.GetString(guestSessionKey)) }
