// Command fabflow serves the fab inspection review workflow and its companion
// knowledge router and document chatbot.
package main

func main() {
	Execute()
}
