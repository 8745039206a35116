package models

import "github.com/go-playground/validator/v10"

// shared validator for New* input structs
var validate = validator.New()
