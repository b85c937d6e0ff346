// Package cartapi is a reference implementation of the remote cart service.
//
// It serves per-user carts over HTTP/JSON. Each cart is a list of lines keyed
// by a server-assigned line id (cartItemId) distinct from the product id.
// Adding a product already present in the user's cart increases that line's
// quantity instead of creating a second line.
//
// Routes:
//
//	GET    /users/{userID}/cart          {"items":[line...]}
//	POST   /users/{userID}/cart/items    {productId, quantity, price, name, image} -> line
//	PATCH  /cart/items/{lineID}          {quantity} -> line
//	DELETE /cart/items/{lineID}          204
//	DELETE /users/{userID}/cart          204
//	GET    /healthz
package cartapi
