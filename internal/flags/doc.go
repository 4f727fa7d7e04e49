// Package flags keeps small durable markers that must survive restarts,
// such as whether today's greeting has already been played. Markers live
// in a BadgerDB database under the user's state directory.
package flags
