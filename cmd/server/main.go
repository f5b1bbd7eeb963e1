package main

import "chatline/internal/app"

func main() {
	app.Run()
}
