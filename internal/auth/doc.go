// Package auth logs in to a CAS-style single sign-on portal with a plain
// username/password form and hands out the resulting cookie session.
package auth
