// Package http provides the request and response helpers used by the
// diagnostics handlers.
//
// # Request
//
//	req := gohttp.NewRequest(r)
//
//	// Bind a JSON body and validate it
//	var body struct {
//	    Theme string `json:"theme" validate:"required,slug"`
//	}
//	errs, err := req.BindValid(&body)
//
//	name := req.RouteParam("name")
//	page := req.Query("page", "1")
//
// # Response
//
//	res := gohttp.NewResponse(w)
//
//	res.Success(data)             // 200 {"data": ...}
//	res.Accepted(data)            // 202 {"data": ...}
//	res.NoContent()               // 204
//	res.Error(400, "bad input")   // {"message": "bad input"}
//	res.NotFound()                // 404 {"message": "Not found."}
//	res.ValidationError(errs)     // 422 {"errors": {"field": ["msg"]}}
//	res.HTML(200, fragment)       // text/html
package http
