// Package validation validates decoded request bodies with
// go-playground/validator struct tags and reports failures in a
// field-keyed error bag.
//
// # Basic Usage
//
//	var body struct {
//	    Theme string `json:"theme" validate:"required,slug,max=32"`
//	}
//	if errs := validation.Struct(body); errs.Has() {
//	    res.ValidationError(errs)
//	    return
//	}
//
// Besides the stock validator tags one custom rule is registered:
//   - slug — letters, numbers, dashes and underscores only
//
// # Error Bag
//
// Fields are named by their JSON names, nested fields with a dotted path:
//
//	{
//	  "errors": {
//	    "theme":       ["The theme field is required."],
//	    "author.name": ["The name may not be greater than 128 characters."]
//	  }
//	}
package validation
