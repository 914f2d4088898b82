package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/heatshop-checkout/internal/cart"
	"github.com/imrishuroy/heatshop-checkout/internal/validation"
)

type ownerFunc func(*gin.Context) cart.Owner

func (a *api) getCart(owner ownerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		crt, err := a.carts.Get(c.Request.Context(), owner(c))
		if err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(crt))
	}
}

func (a *api) addItem(owner ownerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.CartItemRequest
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
		crt, err := a.carts.AddItem(c.Request.Context(), owner(c), toItem(req))
		if err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(crt))
	}
}

func (a *api) updateItem(owner ownerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validation.UpdateQuantityRequest
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
		crt, err := a.carts.UpdateQuantity(c.Request.Context(), owner(c), c.Param("productId"), *req.Quantity)
		if err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(crt))
	}
}

func (a *api) removeItem(owner ownerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		crt, err := a.carts.RemoveItem(c.Request.Context(), owner(c), c.Param("productId"))
		if err != nil {
			a.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(crt))
	}
}

func (a *api) clearCart(owner ownerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.carts.Clear(c.Request.Context(), owner(c)); err != nil {
			a.fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (a *api) replaceCart(c *gin.Context) {
	var req validation.ReplaceCartRequest
	if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
		return
	}
	crt, err := a.carts.Replace(c.Request.Context(), customerOwner(c), toItems(req.Items))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(crt))
}

// mergeCart folds a guest cart into the signed-in customer's cart. The guest
// session may come in the body or the session header.
func (a *api) mergeCart(c *gin.Context) {
	var req validation.MergeCartRequest
	if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
		return
	}
	source := cart.MergeSource{
		GuestSession: req.GuestSession,
		SnapshotID:   req.SnapshotID,
		Items:        toItems(req.Items),
	}
	if source.GuestSession == "" && len(source.Items) == 0 {
		source.GuestSession = c.GetHeader(GuestSessionHeader)
	}
	res, err := a.carts.Merge(c.Request.Context(), source, customerOwner(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": viewOf(res.Cart), "applied": res.Applied})
}
