// Package validation checks operator input with go-playground/validator and
// reports failures as apperrors validation errors.
//
// Custom tags:
//
//	rolename     lower snake case identifier ("project_lead")
//	looseemail   permissive address check: something@something.tld
//	resourcekey  page path or dotted feature key
package validation
