// Package jwt manages access-token issuance and verification using configured signing keys
// and strict validation semantics suitable for low-latency authentication paths.
//
// Claims carry the account id as sub plus email, role and a random jti.
package jwt
