/*
Package soyjs compiles Soy to javascript.

It fulfills the same interface as the javascript produced by the official Soy
compiler and should work as a drop-in replacement.
https://developers.google.com/closure/templates/docs/javascript_usage

It is presently alpha quality.
*/
package soyjs
