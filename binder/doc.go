// Package binder decodes HTTP request bodies into typed values.
package binder
