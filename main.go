package main

import "github.com/Thanhpt21/chatsync-go/cmd"

func main() {
	cmd.Execute()
}
