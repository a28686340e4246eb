// Package logx is pagewatch's zerolog front end.
//
// Components hold a Logger value. Loggers handed out by a Service follow
// every Service.Apply, so a config reload can move the level or open a log
// file without rewiring anything. Console lines carry a file:line caller,
// the file sink is plain JSON.
package logx
